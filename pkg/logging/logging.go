// Package logging builds the zerolog logger used by the docwire command.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg and a closer for its output. The closer is a
// no-op for stdout and stderr.
func New(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "logging: level %q", cfg.Level)
	}

	var out io.Writer
	var closer io.Closer = nopCloser{}
	tty := false
	switch cfg.Target {
	case "", "stderr":
		out, tty = os.Stderr, true
	case "stdout":
		out, tty = os.Stdout, true
	default:
		f, err := os.OpenFile(cfg.Target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "logging: open %s", cfg.Target)
		}
		out, closer = f, f
	}

	return build(out, cfg.Format, level, !tty), closer, nil
}

func build(out io.Writer, format string, level zerolog.Level, noColor bool) zerolog.Logger {
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: noColor}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
