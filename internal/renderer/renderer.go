// Package renderer contains the callback surface the controller reports to and
// implementations of it.
package renderer

import (
	"slices"
	"sync"

	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

// Renderer receives the results of the controller. Calls come from provider
// workers and must return quickly.
type Renderer interface {
	// OnTileAvailable the tile is in the cache and can be read
	OnTileAvailable(id mercantile.TileID)
	// OnPoiAvailable add or update the pois, by id
	OnPoiAvailable(pois []model.Poi)
	OnPoiSelected(id string)
	OnPoiDeselected(id string)
}

type multi []Renderer

// Multi forwards every call to all renderers, in order
func Multi(rs ...Renderer) Renderer {
	return multi(rs)
}

func (m multi) OnTileAvailable(id mercantile.TileID) {
	for _, r := range m {
		r.OnTileAvailable(id)
	}
}

func (m multi) OnPoiAvailable(pois []model.Poi) {
	for _, r := range m {
		r.OnPoiAvailable(pois)
	}
}

func (m multi) OnPoiSelected(id string) {
	for _, r := range m {
		r.OnPoiSelected(id)
	}
}

func (m multi) OnPoiDeselected(id string) {
	for _, r := range m {
		r.OnPoiDeselected(id)
	}
}

// Recorder remembers every call, the known pois are kept merged by id
type Recorder struct {
	lock       sync.Mutex
	tiles      []mercantile.TileID
	pois       []model.Poi
	poiCalls   int
	selected   []string
	deselected []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnTileAvailable(id mercantile.TileID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tiles = append(r.tiles, id)
}

func (r *Recorder) OnPoiAvailable(pois []model.Poi) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.poiCalls++
	r.pois = model.MergePois(r.pois, pois...)
}

func (r *Recorder) OnPoiSelected(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.selected = append(r.selected, id)
}

func (r *Recorder) OnPoiDeselected(id string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.deselected = append(r.deselected, id)
}

// Tiles all reported tiles in order of the calls
func (r *Recorder) Tiles() []mercantile.TileID {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.tiles)
}

// TileCount how often id was reported
func (r *Recorder) TileCount(id mercantile.TileID) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for _, t := range r.tiles {
		if t == id {
			n++
		}
	}
	return n
}

// Pois the pois known to the renderer
func (r *Recorder) Pois() []model.Poi {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.pois)
}

// PoiCalls number of OnPoiAvailable calls
func (r *Recorder) PoiCalls() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.poiCalls
}

func (r *Recorder) Selected() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.selected)
}

func (r *Recorder) Deselected() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return slices.Clone(r.deselected)
}
