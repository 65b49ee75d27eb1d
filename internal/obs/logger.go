// Package obs wires the process-wide logger and tracer.
package obs

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/config"
)

// NewLogger builds a logrus logger from cfg. Production defaults to JSON
// output, everything else to text.
func NewLogger(cfg config.Log, prod bool) *logrus.Logger {
	return newLogger(os.Stdout, cfg, prod)
}

func newLogger(out io.Writer, cfg config.Log, prod bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "text"
		if prod {
			format = "json"
		}
	}
	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		log.WithField("level", cfg.Level).Warn("unknown log level, using info")
	}
	log.SetLevel(level)
	return log
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
