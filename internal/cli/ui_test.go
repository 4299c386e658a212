package cli

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFetchProgress(t *testing.T) {
	ctx := context.Background()
	var out syncBuffer
	p := newFetchProgress(newSpinner(ctx, &out, "start"))

	p.OnParseStart(ctx, "cargo", "Cargo.lock")
	if got := p.spin.text(); got != "Parsing Cargo.lock (cargo)" {
		t.Errorf("message = %q", got)
	}

	p.OnFetchComplete(ctx, "sha256:aa", 1024, time.Millisecond, nil)
	p.OnFetchComplete(ctx, "sha256:bb", 2048, time.Millisecond, nil)
	p.OnFetchComplete(ctx, "sha256:cc", 99, time.Millisecond, errors.New("boom"))

	n, b := p.totals()
	if n != 2 || b != 3072 {
		t.Errorf("totals = %d, %d; want 2, 3072", n, b)
	}
	if got := p.spin.text(); got != "Fetched 2 artifacts (3.0 KiB)" {
		t.Errorf("message = %q", got)
	}
}
