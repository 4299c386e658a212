// Command prefetch fetches the locked dependencies of a project ahead of a
// network-isolated build.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/matzehuels/prefetch/internal/cli"
	perrors "github.com/matzehuels/prefetch/pkg/errors"
)

// Exit statuses.
const (
	exitOK          = 0
	exitUsage       = 1   // bad flags, configuration, environment
	exitPrefetch    = 2   // lockfile, resolution or fetch failure
	exitInterrupted = 130 // SIGINT or SIGTERM
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	os.Exit(report(os.Stderr, err))
}

func execute(ctx context.Context, args []string) error {
	c := cli.New(os.Stderr, cli.LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// report prints err to w and returns the exit status for it.
func report(w io.Writer, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "interrupted")
		return exitInterrupted
	case perrors.IsFatal(err):
		fmt.Fprintln(w, "prefetch failed:", err)
		return exitPrefetch
	default:
		fmt.Fprintln(w, "error:", err)
		return exitUsage
	}
}
