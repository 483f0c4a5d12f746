package logging

import (
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New builds a logfmt logger writing to w. Unknown levels fall back to info.
func New(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		TimeFunction:    log.NowUTC,
		TimeFormat:      time.RFC3339Nano,
		Level:           lvl,
		ReportTimestamp: true,
		Formatter:       log.LogfmtFormatter,
	})
}

// Init installs the logger as the slog default and as the output of the stdlib log package
func Init(level string) *log.Logger {
	logger := New(os.Stdout, level)
	slog.SetDefault(slog.New(logger))

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With("source", "stdlib").StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel}).Writer())
	return logger
}
