package controller

import (
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willie68/go_tilefeed/internal/event"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/renderer"
	"github.com/willie68/go_tilefeed/internal/tilecache"
	"github.com/willie68/go_tilefeed/internal/utils/measurement"
)

const (
	eiffelLat = 48.8606
	eiffelLon = 2.2960
)

var (
	eiffel   = mercantile.TileID{X: 265487, Y: 180361, Z: 19}
	errFetch = errors.New("boom")
)

// fakeSource records the fetches, results are posted by the test
type fakeSource[E any] struct {
	name    string
	events  *event.Channel[E]
	lock    sync.Mutex
	fetches []mercantile.TileID
}

func newFakeSource[E any](name string) *fakeSource[E] {
	return &fakeSource[E]{name: name, events: event.NewChannel[E](name)}
}

func (f *fakeSource[E]) Name() string { return f.name }

func (f *fakeSource[E]) Fetch(id mercantile.TileID) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fetches = append(f.fetches, id)
}

func (f *fakeSource[E]) Register(l event.Listener[E]) event.Subscription {
	return f.events.Register(l)
}

func (f *fakeSource[E]) Unregister(s event.Subscription) {
	f.events.Unregister(s)
}

func (f *fakeSource[E]) Close() error { return nil }

func (f *fakeSource[E]) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.fetches)
}

type fakeTiles struct {
	*fakeSource[provider.TileEvent]
}

func newFakeTiles(name string) *fakeTiles {
	return &fakeTiles{newFakeSource[provider.TileEvent](name)}
}

func (f *fakeTiles) Namespace() string { return f.name }

func (f *fakeTiles) deliver(id mercantile.TileID, data string) {
	tile := model.NewTile(id, []byte(data))
	f.events.Post(provider.TileEvent{ID: id, Tile: &tile})
}

func (f *fakeTiles) fail(id mercantile.TileID) {
	f.events.Post(provider.TileEvent{ID: id, Err: errFetch})
}

type fakePois struct {
	*fakeSource[provider.PoiEvent]
}

func newFakePois(name string) *fakePois {
	return &fakePois{newFakeSource[provider.PoiEvent](name)}
}

func (f *fakePois) deliver(id mercantile.TileID, ids ...string) {
	pois := make([]model.Poi, 0, len(ids))
	for _, pid := range ids {
		pois = append(pois, model.NewPoiBuilder().ID(pid).Position(eiffelLat, eiffelLon, 0).Build())
	}
	f.events.Post(provider.PoiEvent{ID: id, Pois: pois})
}

func (f *fakePois) fail(id mercantile.TileID) {
	f.events.Post(provider.PoiEvent{ID: id, Err: errFetch})
}

func newCache(t *testing.T, size int) *tilecache.Cache {
	c, err := tilecache.New(tilecache.Config{Path: t.TempDir(), Size: size})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

type fixture struct {
	ctrl  *Controller
	cache *tilecache.Cache
	rec   *renderer.Recorder
	tiles *fakeTiles
	pois  *fakePois
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		cache: newCache(t, 20),
		rec:   renderer.NewRecorder(),
		tiles: newFakeTiles("tiles"),
		pois:  newFakePois("pois"),
	}
	f.ctrl = New(f.cache, f.rec)
	f.ctrl.SetTileProvider(f.tiles)
	f.ctrl.AddPoiProvider(f.pois)
	t.Cleanup(func() { f.ctrl.Close() })
	return f
}

func TestDebounce(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.ctrl.SetCameraPosition(eiffelLat+0.00001, eiffelLon+0.00001, 6)

	ast.Equal(1, f.tiles.count())
	ast.Equal(1, f.pois.count())
	ast.Equal(Loading, f.ctrl.State())
	cur, ok := f.ctrl.CurrentTile()
	ast.True(ok)
	ast.Equal(eiffel, cur)
	ast.Equal(6.0, f.ctrl.Camera().Alt)

	f.tiles.deliver(eiffel, "png")
	f.pois.deliver(eiffel, "d1")
	ast.Equal(Idle, f.ctrl.State())

	// still the same tile while idle
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 7)
	ast.Equal(1, f.tiles.count())
	ast.Equal(1, f.pois.count())
	ast.Equal(Idle, f.ctrl.State())
}

func TestConcurrentCameraUpdates(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)

	wg := sync.WaitGroup{}
	for g := range 16 {
		wg.Go(func() {
			for i := range 100 {
				jitter := float64(g*100+i) * 1e-8
				f.ctrl.SetCameraPosition(eiffelLat+jitter, eiffelLon-jitter, float64(i))
			}
		})
	}
	wg.Wait()

	ast.Equal(1, f.tiles.count())
	ast.Equal(1, f.pois.count())
	ast.Equal(Loading, f.ctrl.State())
	cur, ok := f.ctrl.CurrentTile()
	ast.True(ok)
	ast.Equal(eiffel, cur)
}

func TestCompletion(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)

	f.tiles.deliver(eiffel, "png")
	ast.Equal(Loading, f.ctrl.State())
	ast.True(f.cache.Contains(eiffel))
	ast.Equal([]mercantile.TileID{eiffel}, f.rec.Tiles())
	data, err := f.ctrl.TileData(eiffel)
	ast.NoError(err)
	ast.Equal("png", string(data))

	f.pois.deliver(eiffel, "d1", "d2")
	ast.Equal(Idle, f.ctrl.State())
	ast.Len(f.rec.Pois(), 2)
}

func TestCachedTileIsNotFetched(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	require.NoError(t, f.cache.Put(eiffel, []byte("png")))

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	ast.Equal(0, f.tiles.count())
	ast.Equal(1, f.pois.count())
	ast.Equal(1, f.rec.TileCount(eiffel))
	ast.Equal(Loading, f.ctrl.State())

	f.pois.deliver(eiffel)
	ast.Equal(Idle, f.ctrl.State())
	// empty poi results are not reported
	ast.Equal(0, f.rec.PoiCalls())
}

func TestNothingOutstanding(t *testing.T) {
	ast := assert.New(t)
	cache := newCache(t, 20)
	require.NoError(t, cache.Put(eiffel, []byte("png")))
	rec := renderer.NewRecorder()
	ctrl := New(cache, rec)
	defer ctrl.Close()

	ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	ast.Equal(Idle, ctrl.State())
	ast.Equal(1, rec.TileCount(eiffel))
}

func TestFailureIsRetried(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)

	f.tiles.fail(eiffel)
	f.pois.deliver(eiffel, "d1")
	ast.Equal(Idle, f.ctrl.State())
	ast.False(f.cache.Contains(eiffel))
	ast.Empty(f.rec.Tiles())
	_, ok := f.ctrl.CurrentTile()
	ast.False(ok)

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	ast.Equal(2, f.tiles.count())
	ast.Equal(2, f.pois.count())
	f.tiles.deliver(eiffel, "png")
	f.pois.deliver(eiffel, "d1")
	ast.Equal(Idle, f.ctrl.State())
	ast.True(f.cache.Contains(eiffel))
	_, ok = f.ctrl.CurrentTile()
	ast.True(ok)
}

func TestPoiFailureIsRetried(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.tiles.deliver(eiffel, "png")
	f.pois.fail(eiffel)
	ast.Equal(Idle, f.ctrl.State())

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	// the tile is cached now, only the pois are fetched again
	ast.Equal(1, f.tiles.count())
	ast.Equal(2, f.pois.count())
}

func TestStaleTileIsCached(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.ctrl.SetCameraPosition(52.5200, 13.4050, 5)
	berlin, err := mercantile.Tile(52.5200, 13.4050, 19)
	require.NoError(t, err)
	ast.Equal(2, f.tiles.count())

	f.tiles.deliver(eiffel, "old")
	f.pois.deliver(eiffel, "eiffel-poi")
	ast.True(f.cache.Contains(eiffel))
	ast.Equal(1, f.rec.TileCount(eiffel))
	ast.Len(f.rec.Pois(), 1)
	ast.Equal(Loading, f.ctrl.State())

	f.tiles.deliver(berlin, "new")
	f.pois.deliver(berlin)
	ast.Equal(Idle, f.ctrl.State())
}

func TestNeighboursAreKept(t *testing.T) {
	ast := assert.New(t)
	cache := newCache(t, 4)
	tiles := newFakeTiles("tiles")
	ctrl := New(cache, renderer.NewRecorder())
	defer ctrl.Close()
	ctrl.SetTileProvider(tiles)

	neighbour := mercantile.TileID{X: eiffel.X + 1, Y: eiffel.Y, Z: 19}
	far := func(i int) mercantile.TileID {
		return mercantile.TileID{X: eiffel.X + 100 + i, Y: eiffel.Y, Z: 19}
	}
	require.NoError(t, cache.Put(neighbour, []byte("n")))
	require.NoError(t, cache.Put(far(1), []byte("a")))
	require.NoError(t, cache.Put(far(2), []byte("b")))

	ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	tiles.deliver(eiffel, "c")
	require.NoError(t, cache.Put(far(3), []byte("d")))

	ast.True(cache.Contains(neighbour))
	ast.True(cache.Contains(eiffel))
	ast.False(cache.Contains(far(1)))
	ast.False(cache.Contains(far(2)))
	ast.Equal(3, cache.Len())
}

func TestTileProviderChurn(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.pois.deliver(eiffel)

	next := newFakeTiles("next")
	f.ctrl.SetTileProvider(next)
	ast.Equal(0, f.tiles.events.Len())
	ast.Equal(1, next.events.Len())
	// the new provider is asked for the current tile
	ast.Equal(1, next.count())
	ast.Equal(Loading, f.ctrl.State())

	// late result of the old provider is not applied
	f.tiles.deliver(eiffel, "old")
	ast.False(f.cache.Contains(eiffel))
	ast.Equal(Loading, f.ctrl.State())

	next.deliver(eiffel, "new")
	ast.Equal(Idle, f.ctrl.State())
	data, err := f.cache.Get(eiffel)
	ast.NoError(err)
	ast.Equal("new", string(data))

	// same provider again is a no-op
	f.ctrl.SetTileProvider(next)
	ast.Equal(1, next.events.Len())
	ast.Equal(1, next.count())
}

func TestRemovePoiProvider(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	other := newFakePois("other")
	f.ctrl.AddPoiProvider(other)
	f.ctrl.AddPoiProvider(other)
	ast.Equal(2, f.ctrl.PoiProviders())
	ast.Equal(1, other.events.Len())

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.tiles.deliver(eiffel, "png")
	f.pois.deliver(eiffel, "d1")
	ast.Equal(Loading, f.ctrl.State())

	f.ctrl.RemovePoiProvider(other)
	ast.Equal(Idle, f.ctrl.State())
	ast.Equal(0, other.events.Len())
	other.deliver(eiffel, "late")
	ast.Len(f.rec.Pois(), 1)
	ast.Equal(1, f.ctrl.PoiProviders())
}

func TestBufferedResultsAreFlushed(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	early := newFakePois("early")
	early.deliver(eiffel, "buffered")

	f.ctrl.AddPoiProvider(early)
	ast.Len(f.rec.Pois(), 1)
	ast.Equal("buffered", f.rec.Pois()[0].ID)
	// no current tile, nothing to fetch
	ast.Equal(0, early.count())
}

func TestAddPoiProviderFetchesCurrentTile(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	f.tiles.deliver(eiffel, "png")
	f.pois.deliver(eiffel)
	ast.Equal(Idle, f.ctrl.State())

	late := newFakePois("late")
	f.ctrl.AddPoiProvider(late)
	ast.Equal(1, late.count())
	ast.Equal(Loading, f.ctrl.State())
	late.deliver(eiffel, "x")
	ast.Equal(Idle, f.ctrl.State())
}

func TestRequestTile(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	id := mercantile.TileID{X: 1, Y: 2, Z: 5}

	f.ctrl.RequestTile(id)
	ast.Equal(1, f.tiles.count())
	ast.Equal(Idle, f.ctrl.State())
	f.tiles.deliver(id, "png")
	ast.True(f.cache.Contains(id))
	ast.Equal(1, f.rec.TileCount(id))

	f.ctrl.RequestTile(id)
	ast.Equal(1, f.tiles.count())
	ast.Equal(2, f.rec.TileCount(id))

	f.ctrl.RequestTile(mercantile.TileID{X: 100, Y: 0, Z: 2})
	ast.Equal(1, f.tiles.count())
}

func TestSelectionAndCommit(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SelectPoi("d1")
	f.ctrl.DeselectPoi("d1")
	ast.Equal([]string{"d1"}, f.rec.Selected())
	ast.Equal([]string{"d1"}, f.rec.Deselected())

	p := model.NewPoiBuilder().ID("d1").Position(1, 2, 3).Build()
	p.Edit(f.ctrl).Position(4, 5, 6).Icon("heart").Commit()
	pois := f.rec.Pois()
	require.Len(t, pois, 1)
	ast.Equal(4.0, pois[0].Lat)
	ast.Equal("heart", pois[0].IconID)
	// selection doesn't touch the fetch state
	ast.Equal(Idle, f.ctrl.State())
	ast.Equal(0, f.tiles.count())
}

func TestInvalidPosition(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	f.ctrl.SetCameraPosition(89.5, 0, 5)
	ast.Equal(0, f.tiles.count())
	ast.Equal(Idle, f.ctrl.State())
	_, ok := f.ctrl.CurrentTile()
	ast.False(ok)
}

func TestClose(t *testing.T) {
	ast := assert.New(t)
	f := newFixture(t)
	ast.NoError(f.ctrl.Close())
	ast.Equal(0, f.tiles.events.Len())
	ast.Equal(0, f.pois.events.Len())

	f.ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	ast.Equal(0, f.tiles.count())
}

func TestMeasurement(t *testing.T) {
	ast := assert.New(t)
	ms := measurement.New(true)
	cache := newCache(t, 20)
	tiles := newFakeTiles("tiles")
	ctrl := New(cache, renderer.NewRecorder(), WithMeasurement(ms), WithZoom(17), WithRadius(1))
	defer ctrl.Close()
	ctrl.SetTileProvider(tiles)
	ast.Equal(17, ctrl.Zoom())

	ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	cur, _ := ctrl.CurrentTile()
	ast.Equal(17, cur.Z)
	tiles.deliver(cur, "png")

	ast.Equal(1, ms.Point(cycleMeasurement).Data().Count)
	ast.Equal(1, ms.Point(putMeasurement).Data().Count)
}

func TestWithRealProviders(t *testing.T) {
	ast := assert.New(t)
	fsys := fstest.MapFS{
		"19/265487/180361.png":  {Data: []byte("eiffel")},
		"19/265487/180361.json": {Data: []byte(`[{"sid": "tower", "shape": "balloon", "lat": 48.8584, "lon": 2.2945}]`)},
	}
	tiles := provider.NewFSProvider("assets", fsys, "test", provider.Config{})
	defer tiles.Close()
	pois := provider.NewPoiFSProvider("pois", fsys, provider.Config{})
	defer pois.Close()

	cache := newCache(t, 20)
	rec := renderer.NewRecorder()
	ctrl := New(cache, rec)
	defer ctrl.Close()
	ctrl.SetTileProvider(tiles)
	ctrl.AddPoiProvider(pois)

	ctrl.SetCameraPosition(eiffelLat, eiffelLon, 5)
	ast.Eventually(func() bool { return ctrl.State() == Idle }, 5*time.Second, 10*time.Millisecond)
	ast.Equal(1, rec.TileCount(eiffel))
	ast.Len(rec.Pois(), 1)
	data, err := ctrl.TileData(eiffel)
	ast.NoError(err)
	ast.Equal("eiffel", string(data))
}
