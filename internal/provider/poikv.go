package provider

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

const defaultDatasetZoom = 19

// poiKVProvider keeps a poi dataset in a badger database, one entry per tile
// with the key poi/{z}/{x}/{y}
type poiKVProvider struct {
	*Fetcher[PoiEvent]
	log    *slog.Logger
	db     *badger.DB
	zoom   int
	offset int
}

// NewPoiKVProvider opens the database at config.Path, an empty path keeps the
// database in memory. A dataset file given as config.URL is imported.
func NewPoiKVProvider(name string, config Config) (*poiKVProvider, error) {
	opts := badger.DefaultOptions(config.Path).WithLogger(nil)
	if config.Path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening poi database %s", config.Path)
	}
	s := &poiKVProvider{
		log:    logging.New(name),
		db:     db,
		zoom:   config.Zoom,
		offset: config.Offset,
	}
	if s.zoom <= 0 {
		s.zoom = defaultDatasetZoom
	}
	if s.offset <= 0 {
		s.offset = defaultOffset
	}
	s.Fetcher = newFetcher[PoiEvent](name, config, s.load, poiFailed)
	if config.URL != "" {
		if err := s.importFile(config.URL); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *poiKVProvider) importFile(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return errors.Wrapf(err, "opening poi dataset %s", fn)
	}
	defer f.Close()
	pois, err := model.DecodePois(f)
	if err != nil {
		return errors.Wrapf(err, "poi dataset %s", fn)
	}
	return s.Import(pois)
}

// Import sorts the pois into their tiles and merges them into the database
func (s *poiKVProvider) Import(pois []model.Poi) error {
	byTile := make(map[mercantile.TileID][]model.Poi)
	for _, p := range pois {
		id, err := mercantile.Tile(p.Lat, p.Lon, s.zoom)
		if err != nil {
			s.log.Warn("skipping poi outside of the map", "poi", p.ID, "error", err)
			continue
		}
		byTile[id] = append(byTile[id], p)
	}
	for id, ps := range byTile {
		err := s.db.Update(func(txn *badger.Txn) error {
			existing, err := readPois(txn, id)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := model.EncodePois(&buf, model.MergePois(existing, ps...)); err != nil {
				return err
			}
			return txn.Set(poiKey(id), buf.Bytes())
		})
		if err != nil {
			return errors.Wrapf(err, "importing pois of %s", id)
		}
	}
	s.log.Info("pois imported", "pois", len(pois), "tiles", len(byTile))
	return nil
}

// load collects the pois around the dataset tile containing id. Requests
// below the dataset zoom can't be answered.
func (s *poiKVProvider) load(_ context.Context, id mercantile.TileID) PoiEvent {
	if id.Z < s.zoom {
		return poiFailed(id, errors.Wrapf(ErrProviderFetch, "zoom %d below dataset zoom %d", id.Z, s.zoom))
	}
	dt := mercantile.Parent(id, s.zoom)
	pois := make([]model.Poi, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, n := range mercantile.Neighbours(dt, s.offset) {
			ps, err := readPois(txn, n)
			if err != nil {
				return err
			}
			pois = model.MergePois(pois, ps...)
		}
		return nil
	})
	if err != nil {
		return poiFailed(id, errors.Wrapf(ErrProviderFetch, "pois of %s: %v", id, err))
	}
	return PoiEvent{ID: id, Pois: pois}
}

// Close stops the workers and closes the database
func (s *poiKVProvider) Close() error {
	s.Fetcher.Close()
	return s.db.Close()
}

func readPois(txn *badger.Txn, id mercantile.TileID) ([]model.Poi, error) {
	item, err := txn.Get(poiKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pois []model.Poi
	err = item.Value(func(val []byte) error {
		ps, err := model.DecodePois(bytes.NewReader(val))
		pois = ps
		return err
	})
	return pois, err
}

func poiKey(id mercantile.TileID) []byte {
	return fmt.Appendf(nil, "poi/%d/%d/%d", id.Z, id.X, id.Y)
}
