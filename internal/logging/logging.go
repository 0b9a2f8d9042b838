package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/samber/do/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config the logging configuration
type Config struct {
	Level    string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error"`
	Filename string `yaml:"filename" env:"FILENAME"`
	// rotation of the log file
	MaxSize    int  `yaml:"maxsize"`
	MaxBackups int  `yaml:"maxbackups"`
	MaxAge     int  `yaml:"maxage"`
	Compress   bool `yaml:"compress"`

	Gelfurl  string `yaml:"gelf-url" env:"GELF_URL"`
	Gelfport int    `yaml:"gelf-port" env:"GELF_PORT"`
}

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Handler]
	// Root all component loggers derive from it, so Configure reaches loggers created before
	Root = slog.New(&rootHandler{})

	mu      sync.Mutex
	closers []io.Closer
)

func init() {
	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	current.Store(&h)
}

// New returns a logger for the named component
func New(name string) *slog.Logger {
	return Root.With("name", name)
}

// Init configures the root logger from the config registered in the injector
func Init(inj do.Injector) {
	cfg, err := do.InvokeAs[*Config](inj)
	if err != nil {
		Root.Warn(fmt.Sprintf("no logging config found, using defaults: %v", err))
		return
	}
	if err := Configure(*cfg); err != nil {
		Root.Error(fmt.Sprintf("error configuring logging: %v", err))
	}
}

// Configure sets up level and outputs for all loggers
func Configure(cfg Config) error {
	level.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	var cls []io.Closer
	if cfg.Filename != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(os.Stderr, lj)
		cls = append(cls, lj)
	}
	var h slog.Handler = slog.NewTextHandler(w, opts)

	if cfg.Gelfurl != "" {
		gh, err := newGelfHandler(cfg.Gelfurl, cfg.Gelfport, level)
		if err != nil {
			return err
		}
		h = &teeHandler{handlers: []slog.Handler{h, gh}}
		cls = append(cls, gh)
	}

	mu.Lock()
	defer mu.Unlock()
	closeAll()
	closers = cls
	current.Store(&h)
	return nil
}

// Close closes all outputs
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeAll()
}

func closeAll() {
	for _, c := range closers {
		_ = c.Close()
	}
	closers = nil
}

func ParseLevel(l string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rootHandler delegates to the currently configured handler
type rootHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (r *rootHandler) handler() slog.Handler {
	h := *current.Load()
	for _, op := range r.ops {
		h = op(h)
	}
	return h
}

func (r *rootHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return (*current.Load()).Enabled(ctx, l)
}

func (r *rootHandler) Handle(ctx context.Context, rec slog.Record) error {
	return r.handler().Handle(ctx, rec)
}

func (r *rootHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return r.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(as) })
}

func (r *rootHandler) WithGroup(name string) slog.Handler {
	return r.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (r *rootHandler) with(op func(slog.Handler) slog.Handler) *rootHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(r.ops), len(r.ops)+1)
	copy(ops, r.ops)
	return &rootHandler{ops: append(ops, op)}
}
