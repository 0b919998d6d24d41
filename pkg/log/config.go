package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config declares a logger: level, format (text|json) and output (stderr|null).
type Config struct {
	Level            string   `json:"level" yaml:"level"`
	Format           string   `json:"format" yaml:"format"`
	Output           string   `json:"output" yaml:"output"`
	RedactKeys       []string `json:"redactKeys" yaml:"redactKeys"`
	SampleInitial    int      `json:"sampleInitial" yaml:"sampleInitial"`
	SampleThereafter int      `json:"sampleThereafter" yaml:"sampleThereafter"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(lvl)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	switch strings.ToLower(cfg.Output) {
	case "", "stderr", "console":
		opts = append(opts, WithOutput(NewConsoleOutput()))
	case "null", "none":
		opts = append(opts, WithOutput(NullOutput{}))
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}
	if len(cfg.RedactKeys) > 0 {
		opts = append(opts, WithRedactedKeys(cfg.RedactKeys...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

// stdWriter adapts a Logger to io.Writer for the standard library logger.
type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}

// ToStdLogger returns a *log.Logger writing through l.
func ToStdLogger(l Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{l: l}, "", 0)
}

// RedirectStdLog routes the standard library's default logger (used by Pebble)
// through l.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l: l})
}
