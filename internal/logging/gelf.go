package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aphistic/golf"
)

// gelfHandler sends log records to a graylog server
type gelfHandler struct {
	client *golf.Client
	logger *golf.Logger
	level  slog.Leveler
	attrs  map[string]any
	group  string
}

var _ slog.Handler = (*gelfHandler)(nil)

func newGelfHandler(url string, port int, level slog.Leveler) (*gelfHandler, error) {
	c, err := golf.NewClient()
	if err != nil {
		return nil, err
	}
	if err := c.Dial(fmt.Sprintf("udp://%s:%d", url, port)); err != nil {
		_ = c.Close()
		return nil, err
	}
	l, err := c.NewLogger()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if host, err := os.Hostname(); err == nil {
		l.SetAttr("host", host)
	}
	l.SetAttr("facility", "go_tilefeed")
	return &gelfHandler{
		client: c,
		logger: l,
		level:  level,
		attrs:  map[string]any{},
	}, nil
}

func (h *gelfHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *gelfHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		attrs[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.key(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	switch {
	case r.Level >= slog.LevelError:
		return h.logger.Errm(attrs, "%s", r.Message)
	case r.Level >= slog.LevelWarn:
		return h.logger.Warnm(attrs, "%s", r.Message)
	case r.Level >= slog.LevelInfo:
		return h.logger.Infom(attrs, "%s", r.Message)
	default:
		return h.logger.Dbgm(attrs, "%s", r.Message)
	}
}

func (h *gelfHandler) WithAttrs(as []slog.Attr) slog.Handler {
	n := h.clone()
	for _, a := range as {
		n.attrs[h.key(a.Key)] = a.Value.Resolve().Any()
	}
	return n
}

func (h *gelfHandler) WithGroup(name string) slog.Handler {
	n := h.clone()
	n.group = h.key(name)
	return n
}

func (h *gelfHandler) Close() error {
	return h.client.Close()
}

func (h *gelfHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *gelfHandler) clone() *gelfHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &gelfHandler{
		client: h.client,
		logger: h.logger,
		level:  h.level,
		attrs:  attrs,
		group:  h.group,
	}
}

// teeHandler fans a record out to several handlers
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *teeHandler) WithAttrs(as []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(as)
	}
	return &teeHandler{handlers: hs}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: hs}
}
