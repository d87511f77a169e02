// Package logging wraps logrus with request-scoped fields (trace id, peer,
// database name) so every component logs through the same structured
// pipeline.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"grafeodb/server/internal/security"
)

// ContextKey is the type used for values this package stores on a context.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	PeerKey    ContextKey = "peer"
	DBKey      ContextKey = "database"
)

// Logger wraps a logrus.Logger with the service name pre-populated.
type Logger struct {
	entry *logrus.Entry
}

// Config controls logger construction.
type Config struct {
	Service string
	Level   string // debug, info, warn, error
	Format  string // json, text
	Output  io.Writer
}

// New builds a Logger from explicit configuration.
func New(cfg Config) *Logger {
	base := logrus.New()

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)
	base.AddHook(security.RedactHook{})

	service := cfg.Service
	if service == "" {
		service = "grafeodb-server"
	}

	return &Logger{entry: base.WithField("service", service)}
}

// NewFromEnv builds a Logger from LOG_LEVEL / LOG_FORMAT environment
// variables, falling back to info/json.
func NewFromEnv(service string) *Logger {
	return New(Config{
		Service: service,
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
	})
}

// WithContext pulls any correlation fields stored on ctx (trace id, peer,
// database) and returns a logger that will include them on every line.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	e := l.entry
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		e = e.WithField("trace_id", v)
	}
	if v, ok := ctx.Value(PeerKey).(string); ok && v != "" {
		e = e.WithField("peer", v)
	}
	if v, ok := ctx.Value(DBKey).(string); ok && v != "" {
		e = e.WithField("database", v)
	}
	return e
}

// WithField proxies to the underlying entry for ad-hoc structured fields.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.entry.WithField(key, value)
}

func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

// WithTraceID returns a derived context carrying the given trace id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// WithPeer returns a derived context carrying the given peer identity.
func WithPeer(ctx context.Context, peer string) context.Context {
	return context.WithValue(ctx, PeerKey, peer)
}

// WithDatabase returns a derived context carrying the given database name.
func WithDatabase(ctx context.Context, db string) context.Context {
	return context.WithValue(ctx, DBKey, db)
}

// TraceIDFromContext extracts the trace id previously stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
