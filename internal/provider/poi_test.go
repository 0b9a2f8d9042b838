package provider

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

func poiServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("lat") == "" {
			http.Error(w, "lat missing", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"POIs": [{"sid": "d-%s", "shape": "defibrillator", "lat": %s, "lon": %s}]}`,
			r.URL.Query().Get("lat"), r.URL.Query().Get("lat"), r.URL.Query().Get("lon"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPoiHTTPProvider(t *testing.T) {
	ast := assert.New(t)
	var hits atomic.Int32
	srv := poiServer(t, &hits)
	p := NewPoiHTTPProvider("defis", Config{URL: srv.URL + "/pois?lat={lat}&lon={lon}&radius={radius}"})
	defer p.Close()
	col := newCollector[PoiEvent]()
	p.Register(col)

	p.Fetch(eiffel)
	ev := col.next(t)
	require.NoError(t, ev.Err)
	require.Len(t, ev.Pois, 1)
	lat, lon := mercantile.Center(eiffel)
	ast.InDelta(lat, ev.Pois[0].Lat, 1e-9)
	ast.InDelta(lon, ev.Pois[0].Lon, 1e-9)
	ast.Equal("defibrillator", ev.Pois[0].ShapeID)

	// second fetch is served from the memo
	p.Fetch(eiffel)
	ev = col.next(t)
	ast.NoError(ev.Err)
	ast.Len(ev.Pois, 1)
	ast.Equal(int32(1), hits.Load())
}

func TestPoiHTTPMemoEvicts(t *testing.T) {
	ast := assert.New(t)
	var hits atomic.Int32
	srv := poiServer(t, &hits)
	p := NewPoiHTTPProvider("defis", Config{URL: srv.URL + "/pois?lat={lat}&lon={lon}", Memo: 1, Workers: 1})
	defer p.Close()
	col := newCollector[PoiEvent]()
	p.Register(col)

	other := mercantile.TileID{X: eiffel.X + 1, Y: eiffel.Y, Z: eiffel.Z}
	for _, id := range []mercantile.TileID{eiffel, other, eiffel} {
		p.Fetch(id)
		ev := col.next(t)
		ast.NoError(ev.Err)
		ast.Equal(id, ev.ID)
	}
	ast.Equal(int32(3), hits.Load())
}

func TestPoiHTTPFailure(t *testing.T) {
	ast := assert.New(t)
	var hits atomic.Int32
	srv := poiServer(t, &hits)
	p := NewPoiHTTPProvider("defis", Config{URL: srv.URL + "/pois"})
	defer p.Close()
	col := newCollector[PoiEvent]()
	p.Register(col)

	p.Fetch(eiffel)
	ev := col.next(t)
	ast.ErrorIs(ev.Err, ErrProviderFetch)
	ast.Empty(ev.Pois)
}

func TestPoiFileProvider(t *testing.T) {
	ast := assert.New(t)
	file := func(pois ...string) *fstest.MapFile {
		doc := "["
		for i, p := range pois {
			if i > 0 {
				doc += ","
			}
			doc += fmt.Sprintf(`{"sid": "%s", "shape": "cab", "lat": 48.86, "lon": 2.29}`, p)
		}
		return &fstest.MapFile{Data: []byte(doc + "]")}
	}
	fsys := fstest.MapFS{
		"19/265487/180361.json": file("a", "b"),
		"19/265489/180363.json": file("b", "c"),
		"19/265490/180361.json": file("far"),
		"19/265486/180361.json": {Data: []byte(`[{"sid": "broken"`)},
	}
	p := NewPoiFSProvider("cabs", fsys, Config{})
	defer p.Close()
	col := newCollector[PoiEvent]()
	p.Register(col)

	p.Fetch(eiffel)
	ev := col.next(t)
	ast.NoError(ev.Err)
	ast.ElementsMatch([]string{"a", "b", "c"}, poiIDs(ev.Pois))

	// nothing around, no error
	p.Fetch(mercantile.TileID{X: 1, Y: 1, Z: 19})
	ev = col.next(t)
	ast.NoError(ev.Err)
	ast.Empty(ev.Pois)
}

func TestPoiKVProvider(t *testing.T) {
	ast := assert.New(t)
	p, err := NewPoiKVProvider("kv", Config{})
	require.NoError(t, err)
	defer p.Close()

	lat, lon := mercantile.Center(eiffel)
	near := mercantile.TileID{X: eiffel.X + 2, Y: eiffel.Y - 1, Z: eiffel.Z}
	nlat, nlon := mercantile.Center(near)
	flat, flon := mercantile.Center(mercantile.TileID{X: eiffel.X + 3, Y: eiffel.Y, Z: eiffel.Z})
	err = p.Import([]model.Poi{
		model.NewPoiBuilder().ID("tower").Position(lat, lon, 300).Build(),
		model.NewPoiBuilder().ID("near").Position(nlat, nlon, 0).Build(),
		model.NewPoiBuilder().ID("far").Position(flat, flon, 0).Build(),
		model.NewPoiBuilder().ID("pole").Position(89, 0, 0).Build(),
	})
	require.NoError(t, err)
	// importing again replaces by id
	err = p.Import([]model.Poi{model.NewPoiBuilder().ID("tower").Position(lat, lon, 330).Build()})
	require.NoError(t, err)

	col := newCollector[PoiEvent]()
	p.Register(col)
	p.Fetch(eiffel)
	ev := col.next(t)
	ast.NoError(ev.Err)
	ast.ElementsMatch([]string{"tower", "near"}, poiIDs(ev.Pois))
	for _, poi := range ev.Pois {
		if poi.ID == "tower" {
			ast.Equal(330.0, poi.Alt)
		}
	}
}

func TestPoiKVDatasetZoom(t *testing.T) {
	ast := assert.New(t)
	p, err := NewPoiKVProvider("kv", Config{Zoom: 16, Offset: 1})
	require.NoError(t, err)
	defer p.Close()

	err = p.Import([]model.Poi{
		model.NewPoiBuilder().ID("tower").Position(48.8606, 2.2960, 300).Build(),
	})
	require.NoError(t, err)

	col := newCollector[PoiEvent]()
	p.Register(col)
	id, err := mercantile.Tile(48.8606, 2.2960, 19)
	require.NoError(t, err)
	p.Fetch(id)
	ev := col.next(t)
	ast.NoError(ev.Err)
	ast.Equal(id, ev.ID)
	ast.Equal([]string{"tower"}, poiIDs(ev.Pois))

	// a neighbour of the dataset tile still sees the poi
	p.Fetch(mercantile.TileID{X: id.X + 8, Y: id.Y, Z: 19})
	ev = col.next(t)
	ast.NoError(ev.Err)
	ast.Equal([]string{"tower"}, poiIDs(ev.Pois))

	p.Fetch(mercantile.Parent(id, 15))
	ev = col.next(t)
	ast.ErrorIs(ev.Err, ErrProviderFetch)
}

func TestPoiKVImportFile(t *testing.T) {
	ast := assert.New(t)
	_, err := NewPoiKVProvider("kv", Config{URL: "/does/not/exist.json"})
	ast.Error(err)
}
