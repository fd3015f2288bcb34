// Package logger wraps logrus with the pipeline's formatter and level setup.
package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Components get a *logrus.Entry from
// WithComponent rather than the Logger itself.
type Logger struct {
	*logrus.Entry
}

func New() *Logger {
	return NewWithOutput(os.Stdout)
}

// NewWithOutput builds a logger writing to out, configured from
// ENVIRONMENT and LOG_LEVEL.
func NewWithOutput(out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(formatter(os.Getenv("ENVIRONMENT"), out == os.Stdout))
	base.SetLevel(level(os.Getenv("LOG_LEVEL")))
	return &Logger{Entry: logrus.NewEntry(base)}
}

// formatter picks text output for local runs and JSON for deployed ones.
func formatter(env string, tty bool) logrus.Formatter {
	if env == "" || env == "local" {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
			ForceColors:     tty,
		}
	}
	return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
}

// level falls back to info for empty or unknown names.
func level(name string) logrus.Level {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithOutput(io.Discard)
}

func (l *Logger) WithComponent(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// WithRequest tags an entry with the monitor request's id and route. A
// missing X-Request-ID header gets a fresh uuid.
func (l *Logger) WithRequest(r *http.Request) *logrus.Entry {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	return l.WithFields(logrus.Fields{
		"req_id":    id,
		"method":    r.Method,
		"path":      r.URL.Path,
		"remote_ip": r.RemoteAddr,
	})
}

// WithError logs err as a plain string field so JSON output stays readable.
func (l *Logger) WithError(err error) *logrus.Entry {
	if err == nil {
		return l.Entry
	}
	return l.Entry.WithField("error", err.Error())
}
