// Package logger holds the structured logger shared by the memory layer.
package logger

import (
	"io"
	"log/slog"
)

// L is the global logger instance. It discards all output until Init is called.
var L = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options configures the logger.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Output  io.Writer  // Destination for log records
	JSON    bool       // Emit JSON instead of text
	Level   slog.Level // Minimum log level
}

// Init replaces L according to opts.
func Init(opts Options) {
	if !opts.Enabled || opts.Output == nil {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(opts.Output, handlerOpts))
		return
	}
	L = slog.New(slog.NewTextHandler(opts.Output, handlerOpts))
}
