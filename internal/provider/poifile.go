package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
	"github.com/willie68/go_tilefeed/pkg/fileutils"
)

const defaultOffset = 2

// poiFileProvider reads a poi dataset laid out as {z}/{x}/{y}.json. A fetch
// collects the pois of all tiles within offset around the requested one.
type poiFileProvider struct {
	*Fetcher[PoiEvent]
	log    *slog.Logger
	fsys   fs.FS
	offset int
}

func NewPoiFileProvider(name string, config Config) *poiFileProvider {
	if !fileutils.IsDir(config.Path) {
		logging.New(name).Warn("poi dataset directory not found", "path", config.Path)
	}
	return NewPoiFSProvider(name, os.DirFS(config.Path), config)
}

func NewPoiFSProvider(name string, fsys fs.FS, config Config) *poiFileProvider {
	offset := config.Offset
	if offset <= 0 {
		offset = defaultOffset
	}
	s := &poiFileProvider{
		log:    logging.New(name),
		fsys:   fsys,
		offset: offset,
	}
	s.Fetcher = newFetcher[PoiEvent](name, config, s.load, poiFailed)
	return s
}

func (s *poiFileProvider) load(_ context.Context, id mercantile.TileID) PoiEvent {
	pois := make([]model.Poi, 0)
	for _, n := range mercantile.Neighbours(id, s.offset) {
		fn := fmt.Sprintf("%d/%d/%d.json", n.Z, n.X, n.Y)
		f, err := s.fsys.Open(fn)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("can't open poi file", "file", fn, "error", err)
			}
			continue
		}
		ps, err := model.DecodePois(f)
		f.Close()
		if err != nil {
			s.log.Warn("skipping malformed poi file", "file", fn, "error", err)
			continue
		}
		pois = model.MergePois(pois, ps...)
	}
	return PoiEvent{ID: id, Pois: pois}
}
