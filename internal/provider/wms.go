package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

type wmsProvider struct {
	*Fetcher[TileEvent]
	log    *slog.Logger
	config Config
	base   *url.URL
	http   *httpGetter
}

// NewWMSProvider creates a provider doing GetMap requests in EPSG:3857
func NewWMSProvider(name string, config Config) (*wmsProvider, error) {
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "wms url of %s", name)
	}
	log := logging.New(name)
	s := &wmsProvider{
		log:    log,
		config: config,
		base:   base,
		http:   newHTTPGetter(log, config),
	}
	s.Fetcher = newFetcher[TileEvent](name, config, s.load, tileFailed)
	return s, nil
}

func (s *wmsProvider) Namespace() string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(s.buildWMSUrl(mercantile.Bbox{}))).String()
}

func (s *wmsProvider) load(ctx context.Context, id mercantile.TileID) TileEvent {
	wmsURL := s.buildWMSUrl(mercantile.XyBounds(id))
	s.log.Debug("requesting WMS tile", "url", wmsURL)
	data, err := s.http.get(ctx, wmsURL)
	if err != nil {
		return tileFailed(id, err)
	}
	tile := model.NewTile(id, data)
	return TileEvent{ID: id, Tile: &tile}
}

func (s *wmsProvider) buildWMSUrl(bb mercantile.Bbox) string {
	u := *s.base
	params := u.Query()
	params.Set("service", "WMS")
	params.Set("request", "GetMap")
	params.Set("layers", s.config.Layers)
	format := s.config.Format
	if format == "" {
		format = "image/png"
	}
	params.Set("format", format)
	params.Set("bbox", fmt.Sprintf("%.9f,%.9f,%.9f,%.9f", bb.Left, bb.Bottom, bb.Right, bb.Top))
	params.Set("width", "256")
	params.Set("height", "256")
	params.Set("srs", "EPSG:3857")
	params.Set("crs", "EPSG:3857")
	if s.config.Version != "" {
		params.Set("version", s.config.Version)
	} else {
		params.Set("version", "1.3.0")
	}
	params.Set("styles", s.config.Styles)
	u.RawQuery = params.Encode()
	return u.String()
}
