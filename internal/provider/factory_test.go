package provider

import (
	"testing"

	"github.com/i0tool5/mbtiles-go"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
)

func testConfigs(t *testing.T) ConfigMap {
	return ConfigMap{
		"bundled": {Type: "asset"},
		"osm":     {Type: "xyz", URL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
		"topo":    {Type: "TMS", URL: "https://example.com/tms"},
		"cabs":    {Type: "poi-file", Path: t.TempDir()},
		"kv":      {Type: "poi-kv"},
	}
}

func TestFactory(t *testing.T) {
	ast := assert.New(t)
	inj := do.New()
	f, err := NewFactory(inj, testConfigs(t))
	require.NoError(t, err)
	defer f.Close()

	ast.Equal([]string{"bundled", "cabs", "kv", "osm", "topo"}, f.Names())
	ast.True(f.HasProvider("osm"))
	ast.False(f.HasProvider("unknown"))

	tp, err := f.TileProvider("bundled")
	ast.NoError(err)
	ast.Equal("bundled", tp.Name())
	_, err = f.TileProvider("cabs")
	ast.ErrorIs(err, ErrNotFound)

	pp, err := f.PoiProvider("cabs")
	ast.NoError(err)
	ast.Equal("cabs", pp.Name())
	_, err = f.PoiProvider("osm")
	ast.ErrorIs(err, ErrNotFound)

	named, err := do.InvokeNamed[TileProvider](inj, "topo")
	ast.NoError(err)
	ast.IsType(&tmsProvider{}, named)
	ast.True(named.(*tmsProvider).isTMS)
}

func TestFactoryPrefetchable(t *testing.T) {
	ast := assert.New(t)
	f, err := NewFactory(do.New(), testConfigs(t))
	require.NoError(t, err)
	defer f.Close()

	ast.False(f.IsPrefetchable("osm"))
	ast.True(f.IsPrefetchable("topo"))
	ast.True(f.IsPrefetchable("bundled"))
	ast.False(f.IsPrefetchable("unknown"))
}

func TestFactoryUnknownType(t *testing.T) {
	ast := assert.New(t)
	ast.Panics(func() {
		NewFactory(do.New(), ConfigMap{"x": {Type: "gopher"}})
	})
}

func TestFactoryInit(t *testing.T) {
	ast := assert.New(t)
	inj := do.New()
	do.ProvideValue(inj, ConfigMap{"bundled": {Type: "asset"}})
	Init(inj)
	f := do.MustInvoke[*Factory](inj)
	defer f.Close()
	ast.Equal([]string{"bundled"}, f.Names())
}

func TestMBTilesFallback(t *testing.T) {
	ast := assert.New(t)
	inj := do.New()
	bundled := NewAssetProvider("bundled", Config{})
	defer bundled.Close()
	do.ProvideNamedValue[TileProvider](inj, "bundled", bundled)

	mbt := &mbtilesProvider{log: logging.New("mbt"), fb: "bundled", inj: inj}
	ev := mbt.load(t.Context(), mercantile.TileID{})
	ast.NoError(ev.Err)
	ast.NotEmpty(ev.Tile.Data)

	mbt.fb = "missing"
	ev = mbt.load(t.Context(), mercantile.TileID{})
	ast.ErrorIs(ev.Err, ErrNotFound)
}

func TestMBTilesClose(t *testing.T) {
	ast := assert.New(t)
	mbt := &mbtilesProvider{log: logging.New("mbt"), db: &mbtiles.MBtiles{}}
	mbt.Fetcher = newFetcher[TileEvent]("mbt", Config{}, mbt.load, tileFailed)
	col := newCollector[TileEvent]()
	mbt.Register(col)

	ast.NoError(mbt.Close())
	ast.Nil(mbt.db)
	ast.NoError(mbt.Close())

	mbt.Fetch(mercantile.TileID{X: 1, Y: 1, Z: 2})
	ev := col.next(t)
	ast.ErrorIs(ev.Err, ErrProviderFetch)
}

func TestMBTilesMetadata(t *testing.T) {
	ast := assert.New(t)
	mbt := &mbtilesProvider{log: logging.New("mbt")}
	mbt.parseMetadata(map[string]any{
		"name":    "world",
		"format":  "png",
		"minzoom": 2,
		"maxzoom": 6,
		"bounds":  []float64{0, 40, 10, 50},
	})
	ast.Equal("world", mbt.meta.Name)
	ast.Equal(6, mbt.meta.Maxzoom)
	require.NotNil(t, mbt.meta.BBox)
	ast.Equal(50.0, mbt.meta.BBox.Top)

	ev := mbt.load(t.Context(), mercantile.TileID{X: 0, Y: 0, Z: 8})
	ast.ErrorIs(ev.Err, ErrProviderFetch)
	ev = mbt.load(t.Context(), mercantile.TileID{X: 0, Y: 0, Z: 3})
	ast.ErrorIs(ev.Err, ErrProviderFetch)
}
