package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/event"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

var (
	// ErrNotFound unknown provider name
	ErrNotFound = errors.New("provider not found")
	// ErrProviderFetch a provider couldn't deliver the data of a tile
	ErrProviderFetch = errors.New("provider fetch failed")
)

const (
	defaultTimeout = 25 * time.Second
	userAgent      = "go_tilefeed/0.1"
)

// TileEvent the result of a tile fetch. A failed fetch carries Err and no tile.
type TileEvent struct {
	ID   mercantile.TileID
	Tile *model.Tile
	Err  error
}

func (e TileEvent) Failure() error {
	return e.Err
}

// PoiEvent the result of a poi fetch for the tile ID
type PoiEvent struct {
	ID   mercantile.TileID
	Pois []model.Poi
	Err  error
}

func (e PoiEvent) Failure() error {
	return e.Err
}

// Source is what every provider offers, fetching by tile id and delivering the
// results asynchronously to the registered listeners.
type Source[E any] interface {
	Name() string
	// Fetch starts loading the data of the tile, never blocks
	Fetch(id mercantile.TileID)
	Register(l event.Listener[E]) event.Subscription
	Unregister(s event.Subscription)
	Close() error
}

type TileProvider interface {
	Source[TileEvent]
	// Namespace a stable id of the tile source
	Namespace() string
}

type PoiProvider interface {
	Source[PoiEvent]
}

type ConfigMap map[string]Config

func (c ConfigMap) GetProviderConfig() ConfigMap {
	return c
}

type Config struct {
	URL       string            `yaml:"url"`
	Type      string            `yaml:"type"` // xyz, tms, wms, mbtiles, asset, poi-http, poi-file, poi-kv
	Layers    string            `yaml:"layers"`
	Format    string            `yaml:"format"`
	Styles    string            `yaml:"styles"`
	Version   string            `yaml:"version"`
	Headers   map[string]string `yaml:"headers"`
	Path      string            `yaml:"path"` // for file based providers
	Extension string            `yaml:"extension"`
	Fallback  string            `yaml:"fallback"`
	Workers   int               `yaml:"workers"`
	Queue     int               `yaml:"queue"`
	Timeout   int               `yaml:"timeout"` // in seconds
	Memo      int               `yaml:"memo"`    // poi-http, number of tiles remembered
	Offset    int               `yaml:"offset"`  // poi-file/poi-kv, neighbourhood read around a tile
	Zoom      int               `yaml:"zoom"`    // poi-kv, zoom of the dataset tiles
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return defaultTimeout
}

func setDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
}

// httpGetter GETs urls with the configured headers
type httpGetter struct {
	log     *slog.Logger
	cl      *http.Client
	headers map[string]string
}

func newHTTPGetter(log *slog.Logger, cfg Config) *httpGetter {
	return &httpGetter{
		log:     log,
		cl:      &http.Client{Timeout: cfg.timeout()},
		headers: cfg.Headers,
	}
}

func (g *httpGetter) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrProviderFetch, "failed to create request: %v", err)
	}
	setDefaultHeaders(req)
	for key, value := range g.headers {
		req.Header.Set(key, value)
	}
	resp, err := g.cl.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrProviderFetch, "request %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		g.log.Debug("error response", "url", url, "status", resp.Status, "body", string(body))
		return nil, errors.Wrapf(ErrProviderFetch, "request %s, status: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(ErrProviderFetch, "read error: %v", err)
	}
	return data, nil
}
