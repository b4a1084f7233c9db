// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logging.Setup(cfg.Level())
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint handler on stderr at level as the default logger.
func Setup(level slog.Level) {
	slog.SetDefault(New(os.Stderr, level))
}

// New returns a colored logger writing to w. Colors are dropped when w is
// not a terminal.
func New(w io.Writer, level slog.Level) *slog.Logger {
	f, isFile := w.(*os.File)
	noColor := !isFile || !isTerminal(f)
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
		NoColor:    noColor,
	}))
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
