// Package logging builds the root hclog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// Options configure the root logger.
type Options struct {
	Verbose bool
	// File, when set, receives all output instead of Output. Used while the
	// TUI owns the terminal.
	File string
	// Output defaults to stderr.
	Output io.Writer
	JSON   bool
}

// New returns the root logger and a close func for its file, if any.
func New(o Options) (hclog.Logger, func() error, error) {
	level := hclog.Info
	if o.Verbose {
		level = hclog.Debug
	}
	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	closer := func() error { return nil }
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0o755); err != nil {
			return nil, closer, err
		}
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closer, err
		}
		out = f
		closer = f.Close
	}
	log := hclog.New(&hclog.LoggerOptions{
		Name:       "usmconv",
		Level:      level,
		Output:     out,
		JSONFormat: o.JSON,
		Color:      hclog.ColorOff,
	})
	return log, closer, nil
}
