// Package controller follows the camera and fetches the tile and the pois of
// the tile the camera is in.
package controller

import (
	"log/slog"
	"sync"

	"github.com/willie68/go_tilefeed/internal/event"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/metrics"
	"github.com/willie68/go_tilefeed/internal/model"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/renderer"
	"github.com/willie68/go_tilefeed/internal/utils/measurement"
)

const (
	DefaultZoom   = 19
	DefaultRadius = 2

	cycleMeasurement = "controller-cycle"
	putMeasurement   = "cache-put"
)

type State int

const (
	// Idle nothing outstanding for the current tile
	Idle State = iota
	// Loading at least one provider works on the current tile
	Loading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	}
	return "unknown"
}

// CameraState the last position reported by the host
type CameraState struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Cache is the part of the tile cache the controller works with
type Cache interface {
	Contains(id mercantile.TileID) bool
	Touch(id mercantile.TileID)
	Put(id mercantile.TileID, data []byte) error
	Get(id mercantile.TileID) ([]byte, error)
}

type Option func(c *Controller)

// WithZoom zoom level of the tiles the camera is mapped to
func WithZoom(zoom int) Option {
	return func(c *Controller) {
		c.zoom = zoom
	}
}

// WithRadius the cached tiles within radius around the current tile are kept
// from eviction
func WithRadius(radius int) Option {
	return func(c *Controller) {
		c.radius = radius
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

func WithMeasurement(ms *measurement.Service) Option {
	return func(c *Controller) {
		c.ms = ms
	}
}

// Controller is a state machine over the camera position. All methods are
// safe for concurrent use and never block on I/O.
type Controller struct {
	log      *slog.Logger
	cache    Cache
	renderer renderer.Renderer
	zoom     int
	radius   int
	ms       *measurement.Service

	// churn serializes provider registration, lock must not be held while
	// registering since buffered events are delivered during Register
	churn sync.Mutex

	lock         sync.Mutex
	state        State
	camera       CameraState
	current      mercantile.TileID
	hasCurrent   bool
	outstanding  map[any]struct{}
	failed       bool
	cycle        measurement.Monitor
	tileProvider provider.TileProvider
	tileSub      event.Subscription
	poiProviders map[provider.PoiProvider]event.Subscription
	closed       bool
}

func New(cache Cache, r renderer.Renderer, opts ...Option) *Controller {
	c := &Controller{
		log:          logging.New("controller"),
		cache:        cache,
		renderer:     r,
		zoom:         DefaultZoom,
		radius:       DefaultRadius,
		outstanding:  make(map[any]struct{}),
		poiProviders: make(map[provider.PoiProvider]event.Subscription),
	}
	for _, o := range opts {
		o(c)
	}
	if c.ms == nil {
		c.ms = measurement.New(false)
	}
	return c
}

func (c *Controller) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// CurrentTile the tile of the camera, false if there is none or the last
// cycle failed
func (c *Controller) CurrentTile() (mercantile.TileID, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.current, c.hasCurrent
}

func (c *Controller) Camera() CameraState {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.camera
}

func (c *Controller) Zoom() int {
	return c.zoom
}

// SetCameraPosition maps the position to a tile. A new tile starts fetching
// its data from all providers. The same tile is ignored while Idle and while
// Loading, the outstanding fetches of a Loading tile already cover it. After a
// failed cycle the tile is forgotten and fetched again.
func (c *Controller) SetCameraPosition(lat, lon, alt float64) {
	metrics.CameraUpdates.Inc()
	id, err := mercantile.Tile(lat, lon, c.zoom)
	if err != nil {
		c.log.Warn("camera position ignored", "error", err)
		return
	}

	c.lock.Lock()
	c.camera = CameraState{Lat: lat, Lon: lon, Alt: alt}
	if c.closed || (c.hasCurrent && id == c.current) {
		c.lock.Unlock()
		return
	}
	metrics.TileChanges.Inc()
	if c.cycle != nil {
		c.cycle.Stop()
		c.cycle = nil
	}
	c.current = id
	c.hasCurrent = true
	c.failed = false
	c.outstanding = make(map[any]struct{})

	pois := make([]provider.PoiProvider, 0, len(c.poiProviders))
	for p := range c.poiProviders {
		pois = append(pois, p)
		c.outstanding[p] = struct{}{}
	}
	tp := c.tileProvider
	cached := c.cache.Contains(id)
	if tp != nil && !cached {
		c.outstanding[tp] = struct{}{}
	}
	if len(c.outstanding) > 0 {
		c.state = Loading
		c.cycle = c.ms.Start(cycleMeasurement)
	} else {
		c.state = Idle
	}
	c.lock.Unlock()

	c.log.Debug("camera moved to new tile", "tile", id.String(), "cached", cached, "outstanding", len(pois))
	c.keepNeighbours(id)
	if cached {
		c.cache.Touch(id)
		c.renderer.OnTileAvailable(id)
	}
	for _, p := range pois {
		p.Fetch(id)
	}
	if tp != nil && !cached {
		tp.Fetch(id)
	}
}

// keepNeighbours touches the cached tiles around id, the tile itself last
func (c *Controller) keepNeighbours(id mercantile.TileID) {
	for _, n := range mercantile.Neighbours(id, c.radius) {
		if n != id && c.cache.Contains(n) {
			c.cache.Touch(n)
		}
	}
}

// RequestTile fetches a tile the renderer needs, independent of the camera
func (c *Controller) RequestTile(id mercantile.TileID) {
	if !id.Valid() {
		c.log.Warn("invalid tile requested", "tile", id.String())
		return
	}
	if c.cache.Contains(id) {
		c.cache.Touch(id)
		c.renderer.OnTileAvailable(id)
		return
	}
	c.lock.Lock()
	tp := c.tileProvider
	c.lock.Unlock()
	if tp != nil {
		tp.Fetch(id)
	}
}

// TileData the cached data of the tile
func (c *Controller) TileData(id mercantile.TileID) ([]byte, error) {
	return c.cache.Get(id)
}

func (c *Controller) SelectPoi(id string) {
	c.renderer.OnPoiSelected(id)
}

func (c *Controller) DeselectPoi(id string) {
	c.renderer.OnPoiDeselected(id)
}

// CommitPoi hands an edited poi to the renderer
func (c *Controller) CommitPoi(p model.Poi) {
	c.renderer.OnPoiAvailable([]model.Poi{p})
}

// SetTileProvider replaces the tile provider, results of the old one are no
// longer applied. The new provider is asked for the current tile.
func (c *Controller) SetTileProvider(p provider.TileProvider) {
	c.churn.Lock()
	defer c.churn.Unlock()

	c.lock.Lock()
	if c.closed || c.tileProvider == p {
		c.lock.Unlock()
		return
	}
	old, oldSub := c.tileProvider, c.tileSub
	if old != nil {
		delete(c.outstanding, old)
	}
	c.tileProvider = p
	c.tileSub = event.Subscription{}
	c.settle()
	c.lock.Unlock()

	if old != nil {
		old.Unregister(oldSub)
		c.log.Info("tile provider unregistered", "provider", old.Name())
	}
	if p == nil {
		return
	}
	sub := p.Register(event.ListenerFunc[provider.TileEvent](func(e provider.TileEvent) {
		c.onTileEvent(p, e)
	}))
	c.lock.Lock()
	c.tileSub = sub
	id, fetch := c.current, c.hasCurrent && !c.cache.Contains(c.current)
	if fetch {
		c.startLoading(p)
	}
	c.lock.Unlock()
	c.log.Info("tile provider registered", "provider", p.Name())
	if fetch {
		p.Fetch(id)
	}
}

// AddPoiProvider registers the provider and fetches the pois of the current tile
func (c *Controller) AddPoiProvider(p provider.PoiProvider) {
	if p == nil {
		return
	}
	c.churn.Lock()
	defer c.churn.Unlock()

	c.lock.Lock()
	_, known := c.poiProviders[p]
	if c.closed || known {
		c.lock.Unlock()
		return
	}
	c.poiProviders[p] = event.Subscription{}
	c.lock.Unlock()

	sub := p.Register(event.ListenerFunc[provider.PoiEvent](func(e provider.PoiEvent) {
		c.onPoiEvent(p, e)
	}))
	c.lock.Lock()
	c.poiProviders[p] = sub
	id, fetch := c.current, c.hasCurrent
	if fetch {
		c.startLoading(p)
	}
	c.lock.Unlock()
	c.log.Info("poi provider registered", "provider", p.Name())
	if fetch {
		p.Fetch(id)
	}
}

// RemovePoiProvider unregisters the provider, late results are dropped
func (c *Controller) RemovePoiProvider(p provider.PoiProvider) {
	c.churn.Lock()
	defer c.churn.Unlock()

	c.lock.Lock()
	sub, known := c.poiProviders[p]
	if !known {
		c.lock.Unlock()
		return
	}
	delete(c.poiProviders, p)
	delete(c.outstanding, p)
	c.settle()
	c.lock.Unlock()

	p.Unregister(sub)
	c.log.Info("poi provider unregistered", "provider", p.Name())
}

// PoiProviders number of registered poi providers
func (c *Controller) PoiProviders() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.poiProviders)
}

// Close unregisters from all providers, the providers themselves stay open
func (c *Controller) Close() error {
	c.churn.Lock()
	defer c.churn.Unlock()

	c.lock.Lock()
	c.closed = true
	tp, tsub := c.tileProvider, c.tileSub
	pois := c.poiProviders
	c.tileProvider = nil
	c.poiProviders = make(map[provider.PoiProvider]event.Subscription)
	c.outstanding = make(map[any]struct{})
	c.settle()
	c.lock.Unlock()

	if tp != nil {
		tp.Unregister(tsub)
	}
	for p, sub := range pois {
		p.Unregister(sub)
	}
	return nil
}

func (c *Controller) onTileEvent(p provider.TileProvider, e provider.TileEvent) {
	c.lock.Lock()
	active := !c.closed && c.tileProvider == p
	c.lock.Unlock()
	if !active {
		c.log.Debug("result of removed tile provider dropped", "provider", p.Name(), "tile", e.ID.String())
		return
	}

	ok := false
	switch {
	case e.Err != nil:
		c.log.Warn("tile fetch failed", "provider", p.Name(), "tile", e.ID.String(), "error", e.Err)
	case e.Tile == nil:
		c.log.Warn("tile fetch without data", "provider", p.Name(), "tile", e.ID.String())
	default:
		m := c.ms.Start(putMeasurement)
		err := c.cache.Put(e.ID, e.Tile.Data)
		m.Stop()
		if err != nil {
			m.SetError()
			c.log.Error("can't cache tile", "tile", e.ID.String(), "error", err)
			break
		}
		ok = true
	}
	if ok {
		c.renderer.OnTileAvailable(e.ID)
	}
	c.complete(p, e.ID, ok)
}

func (c *Controller) onPoiEvent(p provider.PoiProvider, e provider.PoiEvent) {
	c.lock.Lock()
	_, active := c.poiProviders[p]
	c.lock.Unlock()
	if !active {
		c.log.Debug("result of removed poi provider dropped", "provider", p.Name(), "tile", e.ID.String())
		return
	}

	if e.Err != nil {
		c.log.Warn("poi fetch failed", "provider", p.Name(), "tile", e.ID.String(), "error", e.Err)
	} else if len(e.Pois) > 0 {
		c.renderer.OnPoiAvailable(e.Pois)
	}
	c.complete(p, e.ID, e.Err == nil)
}

// complete marks the fetch of src as done, if it belongs to the current tile
func (c *Controller) complete(src any, id mercantile.TileID, ok bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.hasCurrent || id != c.current {
		return
	}
	if _, out := c.outstanding[src]; !out {
		return
	}
	delete(c.outstanding, src)
	if !ok {
		c.failed = true
	}
	c.settle()
}

// startLoading adds src to the outstanding fetches, lock must be held
func (c *Controller) startLoading(src any) {
	c.outstanding[src] = struct{}{}
	if c.state == Idle {
		c.state = Loading
		c.cycle = c.ms.Start(cycleMeasurement)
	}
}

// settle goes to Idle when nothing is outstanding, lock must be held. After a
// failed cycle the current tile is forgotten, so the next camera update
// fetches it again.
func (c *Controller) settle() {
	if c.state != Loading || len(c.outstanding) > 0 {
		return
	}
	c.state = Idle
	if c.cycle != nil {
		if c.failed {
			c.cycle.SetError()
		}
		c.cycle.Stop()
		c.cycle = nil
	}
	if c.failed {
		c.log.Info("tile cycle failed, will retry", "tile", c.current.String())
		c.hasCurrent = false
		c.failed = false
	}
}
