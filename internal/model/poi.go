package model

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultShape shape used if a poi doesn't name one
const DefaultShape = "balloon"

const unnamedPrefix = "unnamed"

var unnamedCounter atomic.Int64

// Poi a point of interest, two pois with the same id are the same entity
type Poi struct {
	ID      string
	ShapeID string
	IconID  string
	Color   RGB
	Lat     float64
	Lon     float64
	Alt     float64
}

// PoiCommitter receives pois changed by a PoiEditor
type PoiCommitter interface {
	CommitPoi(p Poi)
}

// Key the identity of the poi
func (p Poi) Key() string {
	return p.ID
}

// Equal compares identity only
func (p Poi) Equal(o Poi) bool {
	return p.ID == o.ID
}

func (p Poi) HasIcon() bool {
	return strings.TrimSpace(p.IconID) != ""
}

func (p Poi) String() string {
	return fmt.Sprintf("poi %s (%s) at %f, %f, %f", p.ID, p.ShapeID, p.Lat, p.Lon, p.Alt)
}

// MergePois adds or replaces pois by id, keeping the order of first appearance
func MergePois(dst []Poi, pois ...Poi) []Poi {
	idx := make(map[string]int, len(dst))
	for i, p := range dst {
		idx[p.ID] = i
	}
	for _, p := range pois {
		if i, ok := idx[p.ID]; ok {
			dst[i] = p
			continue
		}
		idx[p.ID] = len(dst)
		dst = append(dst, p)
	}
	return dst
}

// PoiBuilder builds a poi step by step
type PoiBuilder struct {
	p Poi
}

func NewPoiBuilder() *PoiBuilder {
	return &PoiBuilder{
		p: Poi{
			ShapeID: DefaultShape,
			Color:   LightGray,
		},
	}
}

// FromPoi starts with all values of p
func (b *PoiBuilder) FromPoi(p Poi) *PoiBuilder {
	b.p = p
	return b
}

func (b *PoiBuilder) ID(id string) *PoiBuilder {
	b.p.ID = id
	return b
}

func (b *PoiBuilder) Shape(shape string) *PoiBuilder {
	b.p.ShapeID = shape
	return b
}

func (b *PoiBuilder) Icon(icon string) *PoiBuilder {
	b.p.IconID = icon
	return b
}

func (b *PoiBuilder) Color(c RGB) *PoiBuilder {
	b.p.Color = c
	return b
}

func (b *PoiBuilder) Latitude(lat float64) *PoiBuilder {
	b.p.Lat = lat
	return b
}

func (b *PoiBuilder) Longitude(lon float64) *PoiBuilder {
	b.p.Lon = lon
	return b
}

func (b *PoiBuilder) Altitude(alt float64) *PoiBuilder {
	b.p.Alt = alt
	return b
}

func (b *PoiBuilder) Position(lat, lon, alt float64) *PoiBuilder {
	b.p.Lat = lat
	b.p.Lon = lon
	b.p.Alt = alt
	return b
}

// Build returns the poi, an empty shape falls back to the default shape and an
// empty id is generated from the shape
func (b *PoiBuilder) Build() Poi {
	p := b.p
	if p.ShapeID == "" {
		p.ShapeID = DefaultShape
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("%s_%s_%d", unnamedPrefix, p.ShapeID, unnamedCounter.Add(1))
	}
	return p
}

// PoiEditor stages changes of an existing poi until Commit
type PoiEditor struct {
	lock      sync.Mutex
	poi       *Poi
	staged    *PoiBuilder
	committer PoiCommitter
}

// Edit starts a transaction on p, the committer is informed on Commit
func (p *Poi) Edit(committer PoiCommitter) *PoiEditor {
	return &PoiEditor{
		poi:       p,
		staged:    NewPoiBuilder().FromPoi(*p),
		committer: committer,
	}
}

func (e *PoiEditor) Position(lat, lon, alt float64) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Position(lat, lon, alt)
	return e
}

func (e *PoiEditor) Latitude(lat float64) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Latitude(lat)
	return e
}

func (e *PoiEditor) Longitude(lon float64) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Longitude(lon)
	return e
}

func (e *PoiEditor) Altitude(alt float64) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Altitude(alt)
	return e
}

func (e *PoiEditor) Color(c RGB) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Color(c)
	return e
}

func (e *PoiEditor) Icon(icon string) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Icon(icon)
	return e
}

func (e *PoiEditor) Shape(shape string) *PoiEditor {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.staged.Shape(shape)
	return e
}

// Commit writes all staged changes into the poi and hands it to the committer.
// The id of the poi can't be changed by an editor.
func (e *PoiEditor) Commit() Poi {
	e.lock.Lock()
	np := e.staged.ID(e.poi.ID).Build()
	*e.poi = np
	e.lock.Unlock()

	if e.committer != nil {
		e.committer.CommitPoi(np)
	}
	return np
}
