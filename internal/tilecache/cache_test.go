package tilecache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willie68/go_tilefeed/internal/mercantile"
)

func tid(x, y int) mercantile.TileID {
	return mercantile.TileID{X: 265487 + x, Y: 180361 + y, Z: 19}
}

func newCache(t *testing.T, size int) (*Cache, string) {
	root := t.TempDir()
	c, err := New(Config{Path: root, Size: size, Extension: "png"})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, root
}

// files returns all tile files below root as ids
func files(t *testing.T, c *Cache) []mercantile.TileID {
	var res []mercantile.TileID
	err := filepath.Walk(c.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			id, ok := c.parseFilename(path)
			assert.True(t, ok, "unexpected file %s", path)
			res = append(res, id)
		}
		return nil
	})
	require.NoError(t, err)
	return res
}

func assertConsistent(t *testing.T, c *Cache) {
	ast := assert.New(t)
	ids := c.IDs()
	ast.ElementsMatch(ids, files(t, c))
	for _, id := range ids {
		_, err := c.Get(id)
		ast.NoError(err)
	}
}

func TestPutGet(t *testing.T) {
	ast := assert.New(t)
	c, root := newCache(t, 10)

	id := tid(0, 0)
	ast.False(c.Contains(id))
	ast.NoError(c.Put(id, []byte("tile data")))
	ast.True(c.Contains(id))
	ast.FileExists(filepath.Join(root, "19", "265487", "180361.png"))

	data, err := c.Get(id)
	ast.NoError(err)
	ast.Equal([]byte("tile data"), data)

	// overwrite
	ast.NoError(c.Put(id, []byte("new data")))
	data, _ = c.Get(id)
	ast.Equal([]byte("new data"), data)
	ast.Equal(1, c.Len())

	_, err = c.Get(tid(1, 1))
	ast.ErrorIs(err, ErrNotFound)
}

func TestScenarioCapacityFour(t *testing.T) {
	ast := assert.New(t)
	c, _ := newCache(t, 4)
	a, b, cc, d, e := tid(0, 0), tid(1, 0), tid(2, 0), tid(3, 0), tid(4, 0)
	for _, id := range []mercantile.TileID{a, b, cc, d, e} {
		ast.NoError(c.Put(id, []byte(id.String())))
	}
	ast.Equal(3, c.Len())
	ast.Equal([]mercantile.TileID{cc, d, e}, c.IDs())
	assertConsistent(t, c)
}

func TestLRUOrder(t *testing.T) {
	ast := assert.New(t)
	const size = 8
	c, _ := newCache(t, size)
	for i := range size {
		ast.NoError(c.Put(tid(i, 0), []byte{byte(i)}))
	}
	// 0 and 1 become the most recent ones
	c.Touch(tid(0, 0))
	ast.NoError(c.Put(tid(1, 0), []byte{1}))
	c.Touch(tid(99, 99))

	ast.NoError(c.Put(tid(100, 0), []byte{100}))
	ast.Equal(size-size/4, c.Len())
	for _, id := range []mercantile.TileID{tid(2, 0), tid(3, 0), tid(4, 0)} {
		ast.False(c.Contains(id), id.String())
	}
	ast.Equal([]mercantile.TileID{tid(5, 0), tid(6, 0), tid(7, 0), tid(0, 0), tid(1, 0), tid(100, 0)}, c.IDs())
	assertConsistent(t, c)
}

func TestManyPutsStayConsistent(t *testing.T) {
	ast := assert.New(t)
	c, _ := newCache(t, 7)
	for i := range 50 {
		ast.NoError(c.Put(tid(i%13, i%5), []byte{byte(i)}))
		ast.LessOrEqual(c.Len(), 7)
		if i%3 == 0 {
			c.Touch(tid(i%7, 0))
		}
	}
	assertConsistent(t, c)
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newCache(t, 16)
	wg := sync.WaitGroup{}
	for g := range 8 {
		wg.Go(func() {
			ast := assert.New(t)
			for i := range 200 {
				id := tid((g+i)%24, i%3)
				switch i % 3 {
				case 0:
					ast.NoError(c.Put(id, []byte(id.String())))
				case 1:
					data, err := c.Get(id)
					if err != nil {
						ast.ErrorIs(err, ErrNotFound)
						continue
					}
					ast.Equal(id.String(), string(data))
				default:
					c.Touch(id)
				}
				ast.LessOrEqual(c.Len(), 16)
			}
		})
	}
	wg.Wait()
	assertConsistent(t, c)
}

func TestTraverse(t *testing.T) {
	ast := assert.New(t)
	root := t.TempDir()
	write := func(rel string) {
		fn := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(fn), 0o755))
		require.NoError(t, os.WriteFile(fn, []byte(rel), 0o644))
	}
	write("19/265487/180361.png")
	write("19/265487/180362.png")
	write("19/265488/180361.png")
	write("19/265488/readme.txt")
	write("19/265488/180363.jpg")
	write("foo.png")

	c, err := New(Config{Path: root, Size: 2})
	require.NoError(t, err)
	defer c.Close()

	// discovery order, the first one was evicted
	ast.Equal([]mercantile.TileID{tid(0, 1), tid(1, 0)}, c.IDs())
	ast.NoFileExists(filepath.Join(root, "19", "265487", "180361.png"))
	ast.FileExists(filepath.Join(root, "19", "265488", "readme.txt"))
	ast.FileExists(filepath.Join(root, "foo.png"))

	data, err := c.Get(tid(1, 0))
	ast.NoError(err)
	ast.Equal("19/265488/180361.png", string(data))
}

func TestInconsistent(t *testing.T) {
	ast := assert.New(t)
	c, root := newCache(t, 4)
	id := tid(0, 0)
	ast.NoError(c.Put(id, []byte{1}))
	ast.NoError(os.Remove(filepath.Join(root, "19", "265487", "180361.png")))

	_, err := c.Get(id)
	ast.ErrorIs(err, ErrInconsistent)
	ast.False(c.Contains(id))
	_, err = c.Get(id)
	ast.ErrorIs(err, ErrNotFound)
}

func TestPutFailure(t *testing.T) {
	ast := assert.New(t)
	c, root := newCache(t, 4)
	// a file where the zoom directory should be
	ast.NoError(os.WriteFile(filepath.Join(root, "18"), []byte{}, 0o644))

	err := c.Put(mercantile.TileID{X: 1, Y: 1, Z: 18}, []byte{1})
	ast.ErrorIs(err, ErrIO)
	ast.Equal(0, c.Len())
}

func TestRemoveAndDecode(t *testing.T) {
	ast := assert.New(t)
	c, _ := newCache(t, 4)
	id := tid(0, 0)
	ast.NoError(c.Put(id, []byte("hello")))

	upper := func(r io.Reader) (string, error) {
		b, err := io.ReadAll(r)
		return strings.ToUpper(string(b)), err
	}
	s, err := Decode(c, id, upper)
	ast.NoError(err)
	ast.Equal("HELLO", s)

	failing := func(r io.Reader) (int, error) {
		return 0, errors.New("boom")
	}
	_, err = Decode(c, id, failing)
	ast.Error(err)

	ast.NoError(c.Remove(id))
	ast.ErrorIs(c.Remove(id), ErrNotFound)
	_, err = Decode(c, id, upper)
	ast.ErrorIs(err, ErrNotFound)
	ast.Empty(files(t, c))
}

func TestCleanupOldFiles(t *testing.T) {
	ast := assert.New(t)
	c, root := newCache(t, 4)
	ast.NoError(c.Put(tid(0, 0), []byte{1}))
	ast.NoError(c.Put(tid(1, 0), []byte{2}))
	old := time.Now().Add(-48 * time.Hour)
	ast.NoError(os.Chtimes(filepath.Join(root, "19", "265487", "180361.png"), old, old))

	n, err := c.CleanupOldFiles(24 * time.Hour)
	ast.NoError(err)
	ast.Equal(1, n)
	ast.Equal([]mercantile.TileID{tid(1, 0)}, c.IDs())
	assertConsistent(t, c)
}

func TestInit(t *testing.T) {
	ast := assert.New(t)
	inj := do.New()
	do.ProvideValue(inj, &Config{Path: t.TempDir(), MaxAge: 1})
	Init(inj)

	c := do.MustInvoke[*Cache](inj)
	ast.Equal(DefaultSize, c.Size())
	ast.NoError(c.Close())
	ast.NoError(c.Close())
}
