package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

// tmsProvider loads tiles via http, for xyz and tms tile servers
type tmsProvider struct {
	*Fetcher[TileEvent]
	*templater
	log    *slog.Logger
	config Config
	isTMS  bool
	http   *httpGetter
}

// NewTMSProvider creates a http tile provider. The url can be a template with
// {x}, {y} and {z}, otherwise /{z}/{x}/{y}.png is appended. With isTMS the
// row numbering starts in the south.
func NewTMSProvider(name string, config Config, isTMS bool) *tmsProvider {
	log := logging.New(name)
	s := &tmsProvider{
		log:    log,
		config: config,
		isTMS:  isTMS,
		http:   newHTTPGetter(log, config),
	}
	r := Resolver(DefaultResolver)
	if isTMS {
		r = TMSResolver
	}
	s.templater = newTemplater(buildTemplate(config.URL, config.Extension), r)
	s.Fetcher = newFetcher[TileEvent](name, config, s.load, tileFailed)
	return s
}

func buildTemplate(url, ext string) string {
	if strings.Contains(url, "{") {
		return url
	}
	if ext == "" {
		ext = "png"
	}
	return strings.TrimSuffix(url, "/") + "/{z}/{x}/{y}." + ext
}

func (s *tmsProvider) Namespace() string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(s.config.URL)).String()
}

func (s *tmsProvider) load(ctx context.Context, id mercantile.TileID) TileEvent {
	tmsURL := s.resolve(id)
	s.log.Debug("requesting tile", "url", tmsURL)
	data, err := s.http.get(ctx, tmsURL)
	if err != nil {
		return tileFailed(id, err)
	}
	tile := model.NewTile(id, data)
	return TileEvent{ID: id, Tile: &tile}
}
