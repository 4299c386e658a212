package cli

import (
	"context"
	"sync"
	"time"

	"github.com/matzehuels/prefetch/pkg/observability"
)

// fetchProgress shows run events on a spinner.
type fetchProgress struct {
	observability.NoopRunHooks
	spin *spinner

	mu      sync.Mutex
	fetched int
	bytes   int64
}

func newFetchProgress(spin *spinner) *fetchProgress {
	return &fetchProgress{spin: spin}
}

func (p *fetchProgress) OnParseStart(_ context.Context, ecosystem, path string) {
	p.spin.update("Parsing %s (%s)", path, ecosystem)
}

func (p *fetchProgress) OnFetchComplete(_ context.Context, _ string, size int64, _ time.Duration, err error) {
	if err != nil {
		return
	}
	p.mu.Lock()
	p.fetched++
	p.bytes += size
	n, b := p.fetched, p.bytes
	p.mu.Unlock()
	p.spin.update("Fetched %d artifacts (%s)", n, formatBytes(b))
}

func (p *fetchProgress) OnReportComplete(context.Context, int, time.Duration, error) {
	p.spin.update("Writing results")
}

// totals returns the number of artifacts and bytes fetched so far.
func (p *fetchProgress) totals() (int, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetched, p.bytes
}
