package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/i0tool5/mbtiles-go"
	"github.com/pkg/errors"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

type metadata struct {
	Name    string
	Format  string
	Maxzoom int
	Minzoom int
	BBox    *mercantile.Bbox
}

// tileLoader loads a tile synchronously, implemented by all tile providers of this package
type tileLoader interface {
	load(ctx context.Context, id mercantile.TileID) TileEvent
}

type mbtilesProvider struct {
	*Fetcher[TileEvent]
	log  *slog.Logger
	path string
	db   *mbtiles.MBtiles
	fb   string
	meta metadata
	inj  do.Injector
}

// NewMBTilesProvider serves the tiles of a mbtiles file. Tiles of zoom 0 are
// loaded from the fallback provider, if one is configured.
func NewMBTilesProvider(name string, config Config, inj do.Injector) (*mbtilesProvider, error) {
	log := logging.New(name)
	db, err := mbtiles.Open(config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open mbtiles database %s", config.Path)
	}
	tf := db.GetTileFormat()
	log.Info(fmt.Sprintf("mbtiles format: %s", tf.String()))
	meta, err := db.ReadMetadata()
	if err != nil {
		log.Error(fmt.Sprintf("failed to read mbtiles metadata: %v", err))
	}
	mbt := &mbtilesProvider{
		log:  log,
		path: config.Path,
		db:   db,
		fb:   config.Fallback,
		inj:  inj,
	}
	mbt.parseMetadata(meta)
	log.Info("mbtiles metadata", "name", mbt.meta.Name, "minzoom", mbt.meta.Minzoom, "maxzoom", mbt.meta.Maxzoom)
	mbt.Fetcher = newFetcher[TileEvent](name, config, mbt.load, tileFailed)
	return mbt, nil
}

func (s *mbtilesProvider) Namespace() string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte("mbtiles:"+s.path)).String()
}

// Close stops the workers and closes the mbtiles file
func (s *mbtilesProvider) Close() error {
	err := s.Fetcher.Close()
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return err
}

func (s *mbtilesProvider) load(ctx context.Context, id mercantile.TileID) TileEvent {
	if id.Z == 0 && s.fb != "" {
		return s.fallback(ctx, id)
	}
	if s.meta.Maxzoom > 0 && (id.Z < s.meta.Minzoom || id.Z > s.meta.Maxzoom) {
		return tileFailed(id, errors.Wrapf(ErrProviderFetch, "zoom level %d out of bounds (%d - %d)", id.Z, s.meta.Minzoom, s.meta.Maxzoom))
	}
	if s.meta.BBox != nil {
		tbox := mercantile.ULBounds(id)
		if tbox.Left > s.meta.BBox.Right || tbox.Right < s.meta.BBox.Left || tbox.Top < s.meta.BBox.Bottom || tbox.Bottom > s.meta.BBox.Top {
			return tileFailed(id, errors.Wrapf(ErrProviderFetch, "tile %s out of bounds", id))
		}
	}
	var data []byte
	y := mercantile.FlipY(id).Y
	err := s.db.ReadTile(int64(id.Z), int64(id.X), int64(y), &data)
	if err != nil || len(data) == 0 {
		return tileFailed(id, errors.Wrapf(ErrProviderFetch, "failed to read tile %s: %v", id, err))
	}
	tile := model.NewTile(id, data)
	return TileEvent{ID: id, Tile: &tile}
}

func (s *mbtilesProvider) fallback(ctx context.Context, id mercantile.TileID) TileEvent {
	ts, err := do.InvokeNamed[TileProvider](s.inj, s.fb)
	if err != nil {
		s.log.Error("fallback provider not found", "fallback", s.fb, "error", err)
		return tileFailed(id, errors.Wrapf(ErrNotFound, "fallback %s", s.fb))
	}
	tl, ok := ts.(tileLoader)
	if !ok {
		return tileFailed(id, errors.Wrapf(ErrProviderFetch, "fallback %s can't be used", s.fb))
	}
	return tl.load(ctx, id)
}

func (s *mbtilesProvider) parseMetadata(meta map[string]any) {
	s.meta.Name, _ = meta["name"].(string)
	s.meta.Format, _ = meta["format"].(string)
	if maxzoom, ok := meta["maxzoom"].(int); ok {
		s.meta.Maxzoom = maxzoom
	}
	if minzoom, ok := meta["minzoom"].(int); ok {
		s.meta.Minzoom = minzoom
	}
	if bbox, ok := meta["bounds"].([]float64); ok {
		if len(bbox) == 4 {
			s.meta.BBox = &mercantile.Bbox{Left: bbox[0], Bottom: bbox[1], Right: bbox[2], Top: bbox[3]}
		}
	}
}
