// Package prefetch warms the tile cache around given positions
package prefetch

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/pkg/extstrgutils"
)

// ErrInvalidPoints the position list couldn't be parsed
var ErrInvalidPoints = errors.New("invalid position list")

// Point a position to warm the cache for
type Point struct {
	Lat float64
	Lon float64
}

// Requester fetches tiles into the cache, implemented by the controller
type Requester interface {
	RequestTile(id mercantile.TileID)
	Zoom() int
}

type Cache interface {
	Contains(id mercantile.TileID) bool
}

type Warmer struct {
	log   *slog.Logger
	req   Requester
	cache Cache
}

func New(req Requester, cache Cache) *Warmer {
	return &Warmer{
		log:   logging.New("prefetch"),
		req:   req,
		cache: cache,
	}
}

// ParsePoints reads a list of lat,lon pairs. Values are separated by space,
// comma or semicolon, e.g. "48.8606,2.2960; 52.52,13.405".
func ParsePoints(value string) ([]Point, error) {
	pairs, err := extstrgutils.SplitPairs(value)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPoints, "%v", err)
	}
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		lat, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPoints, "latitude %q", pair[0])
		}
		lon, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPoints, "longitude %q", pair[1])
		}
		points = append(points, Point{Lat: lat, Lon: lon})
	}
	return points, nil
}

// Warm requests every uncached tile within radius around the points, returns
// the number of requested tiles
func (w *Warmer) Warm(points []Point, radius int) int {
	zoom := w.req.Zoom()
	seen := make(map[mercantile.TileID]struct{})
	count := 0
	for _, p := range points {
		center, err := mercantile.Tile(p.Lat, p.Lon, zoom)
		if err != nil {
			w.log.Warn("position skipped", "position", fmt.Sprintf("%f,%f", p.Lat, p.Lon), "error", err)
			continue
		}
		for _, id := range mercantile.Neighbours(center, radius) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if w.cache.Contains(id) {
				continue
			}
			w.req.RequestTile(id)
			count++
		}
	}
	w.log.Info("cache warming requested", "positions", len(points), "tiles", count)
	return count
}
