package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/prefetch/pkg/prefetch"
)

// newLogger creates the CLI logger writing to w at level. Timestamps are
// formatted as "HH:MM:SS.ms".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
		Prefix:          appName,
	})
}

// logStages records how long each stage of a run took.
func logStages(l *log.Logger, st prefetch.Stats) {
	l.Debug("stages",
		"parse", st.ParseTime.Round(time.Millisecond),
		"fetch", st.FetchTime.Round(time.Millisecond),
		"report", st.ReportTime.Round(time.Millisecond),
		"nodes", st.NodeCount,
		"edges", st.EdgeCount,
	)
}
