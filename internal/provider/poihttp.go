package provider

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
	"github.com/willie68/go_tilefeed/pkg/lruset"
)

const defaultMemoSize = 25

// poiHTTPProvider loads the pois around a tile from a web service. The url is a
// template, typically using {lat}, {lon} and {radius}.
type poiHTTPProvider struct {
	*Fetcher[PoiEvent]
	*templater
	log  *slog.Logger
	http *httpGetter

	memoLock sync.Mutex
	memo     *lruset.Set[mercantile.TileID]
	memoData map[mercantile.TileID][]model.Poi
}

func NewPoiHTTPProvider(name string, config Config) *poiHTTPProvider {
	log := logging.New(name)
	size := config.Memo
	if size <= 0 {
		size = defaultMemoSize
	}
	s := &poiHTTPProvider{
		log:       log,
		http:      newHTTPGetter(log, config),
		templater: newTemplater(config.URL, DefaultResolver),
		memo:      lruset.New[mercantile.TileID](size),
		memoData:  make(map[mercantile.TileID][]model.Poi),
	}
	s.Fetcher = newFetcher[PoiEvent](name, config, s.load, poiFailed)
	return s
}

func (s *poiHTTPProvider) load(ctx context.Context, id mercantile.TileID) PoiEvent {
	if pois, ok := s.remembered(id); ok {
		return PoiEvent{ID: id, Pois: pois}
	}
	u := s.resolve(id)
	s.log.Debug("requesting pois", "url", u)
	data, err := s.http.get(ctx, u)
	if err != nil {
		return poiFailed(id, err)
	}
	pois, err := model.DecodePois(bytes.NewReader(data))
	if err != nil {
		return poiFailed(id, errors.Wrapf(ErrProviderFetch, "pois of %s: %v", id, err))
	}
	s.remember(id, pois)
	return PoiEvent{ID: id, Pois: pois}
}

func (s *poiHTTPProvider) remembered(id mercantile.TileID) ([]model.Poi, bool) {
	s.memoLock.Lock()
	defer s.memoLock.Unlock()
	if !s.memo.Touch(id) {
		return nil, false
	}
	return s.memoData[id], true
}

func (s *poiHTTPProvider) remember(id mercantile.TileID, pois []model.Poi) {
	s.memoLock.Lock()
	defer s.memoLock.Unlock()
	for _, ev := range s.memo.Push(id) {
		delete(s.memoData, ev)
	}
	s.memoData[id] = pois
}
