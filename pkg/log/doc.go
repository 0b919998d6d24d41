// Package log provides the structured logging facade used across ldes.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. It is backed by the standard library's
// slog via a bridge handler that feeds our own formatter/output pipeline, so
// text and JSON output look the same regardless of the call site.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("pagination"), log.Str("view", "es/v1"))
//	l.Info("page sealed", log.Int64("sequence", 3))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level, text|json
// format, stderr|null output, redaction and sampling).
//
// # Interop
//
// RedirectStdLog routes the standard library logger (Pebble logs through it)
// into a Logger.
package log
