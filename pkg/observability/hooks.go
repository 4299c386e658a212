// Package observability lets the engine report what it is doing without
// knowing who listens.
//
// Parsers, the fetcher and the caches emit events through three hook sets:
// [RunHooks] for the stages of a prefetch run, [CacheHooks] for the
// metadata cache, artifact store and mirror, and [HTTPHooks] for registry
// traffic. Every set defaults to a no-op. The command line installs the
// Prometheus recorder from [NewMetrics] and its own progress display:
//
//	m := observability.NewMetrics()
//	observability.SetCacheHooks(m)
//	observability.SetHTTPHooks(m)
//	observability.SetRunHooks(observability.MultiRunHooks(progress, m))
//	defer m.WriteTextfile("prefetch.prom")
//
// Emitting an event:
//
//	observability.Run().OnFetchStart(ctx, address)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Hook sets
// =============================================================================

// RunHooks follows one prefetch run.
type RunHooks interface {
	// One start/complete pair per lockfile.
	OnParseStart(ctx context.Context, ecosystem, path string)
	OnParseComplete(ctx context.Context, ecosystem, path string, records int, duration time.Duration, err error)

	// One start/complete pair per distinct artifact address.
	OnFetchStart(ctx context.Context, address string)
	OnFetchComplete(ctx context.Context, address string, size int64, duration time.Duration, err error)

	OnReportComplete(ctx context.Context, components int, duration time.Duration, err error)
}

// CacheHooks observes lookups and writes. kind names the layer: "metadata",
// "store" or "mirror".
type CacheHooks interface {
	OnCacheHit(ctx context.Context, kind string)
	OnCacheMiss(ctx context.Context, kind string)
	OnCacheSet(ctx context.Context, kind string, size int)
	// OnCacheCorrupt reports an entry that was unreadable or failed
	// verification and was discarded.
	OnCacheCorrupt(ctx context.Context, kind string)
}

// HTTPHooks observes registry and download requests.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	// OnError reports a request that got no response at all.
	OnError(ctx context.Context, method, host, path string, err error)
}

// NoopRunHooks ignores every event. Embed it to implement part of
// [RunHooks].
type NoopRunHooks struct{}

func (NoopRunHooks) OnParseStart(context.Context, string, string)                               {}
func (NoopRunHooks) OnParseComplete(context.Context, string, string, int, time.Duration, error) {}
func (NoopRunHooks) OnFetchStart(context.Context, string)                                       {}
func (NoopRunHooks) OnFetchComplete(context.Context, string, int64, time.Duration, error)       {}
func (NoopRunHooks) OnReportComplete(context.Context, int, time.Duration, error)                {}

// NoopCacheHooks ignores every event.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}
func (NoopCacheHooks) OnCacheCorrupt(context.Context, string)  {}

// NoopHTTPHooks ignores every event.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Fan-out
// =============================================================================

// MultiRunHooks forwards every run event to each of hooks in order. Nil
// entries are skipped.
func MultiRunHooks(hooks ...RunHooks) RunHooks {
	var m multiRunHooks
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	return m
}

type multiRunHooks []RunHooks

func (m multiRunHooks) OnParseStart(ctx context.Context, ecosystem, path string) {
	for _, h := range m {
		h.OnParseStart(ctx, ecosystem, path)
	}
}

func (m multiRunHooks) OnParseComplete(ctx context.Context, ecosystem, path string, records int, d time.Duration, err error) {
	for _, h := range m {
		h.OnParseComplete(ctx, ecosystem, path, records, d, err)
	}
}

func (m multiRunHooks) OnFetchStart(ctx context.Context, address string) {
	for _, h := range m {
		h.OnFetchStart(ctx, address)
	}
}

func (m multiRunHooks) OnFetchComplete(ctx context.Context, address string, size int64, d time.Duration, err error) {
	for _, h := range m {
		h.OnFetchComplete(ctx, address, size, d, err)
	}
}

func (m multiRunHooks) OnReportComplete(ctx context.Context, components int, d time.Duration, err error) {
	for _, h := range m {
		h.OnReportComplete(ctx, components, d, err)
	}
}

// =============================================================================
// Installed hooks
// =============================================================================

// slot holds the installed implementation of one hook set.
type slot[T any] struct {
	mu   sync.RWMutex
	cur  T
	noop T
}

func newSlot[T any](noop T) *slot[T] { return &slot[T]{cur: noop, noop: noop} }

func (s *slot[T]) load() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *slot[T]) store(v T) {
	s.mu.Lock()
	s.cur = v
	s.mu.Unlock()
}

func (s *slot[T]) reset() { s.store(s.noop) }

var (
	runSlot   = newSlot[RunHooks](NoopRunHooks{})
	cacheSlot = newSlot[CacheHooks](NoopCacheHooks{})
	httpSlot  = newSlot[HTTPHooks](NoopHTTPHooks{})
)

// SetRunHooks installs h. A nil h is ignored.
func SetRunHooks(h RunHooks) {
	if h != nil {
		runSlot.store(h)
	}
}

// SetCacheHooks installs h. A nil h is ignored.
func SetCacheHooks(h CacheHooks) {
	if h != nil {
		cacheSlot.store(h)
	}
}

// SetHTTPHooks installs h. A nil h is ignored.
func SetHTTPHooks(h HTTPHooks) {
	if h != nil {
		httpSlot.store(h)
	}
}

// Run returns the installed run hooks.
func Run() RunHooks { return runSlot.load() }

// Cache returns the installed cache hooks.
func Cache() CacheHooks { return cacheSlot.load() }

// HTTP returns the installed HTTP hooks.
func HTTP() HTTPHooks { return httpSlot.load() }

// Reset reinstalls the no-op hooks everywhere.
func Reset() {
	runSlot.reset()
	cacheSlot.reset()
	httpSlot.reset()
}
