package tilecache

import (
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/metrics"
	"github.com/willie68/go_tilefeed/pkg/lruset"
)

const (
	DefaultSize      = 125
	DefaultExtension = "png"
	cleanupInterval  = 1 * time.Minute
)

var (
	// ErrNotFound the tile is not tracked by the cache
	ErrNotFound = errors.New("tile not in cache")
	// ErrIO reading or writing a cache file failed
	ErrIO = errors.New("cache io error")
	// ErrInconsistent the tile is tracked but its file is gone
	ErrInconsistent = errors.New("cache inconsistency")
)

type Config struct {
	Path      string `yaml:"path" env:"PATH" validate:"required"`
	Size      int    `yaml:"size" env:"SIZE" validate:"gte=0"`
	Extension string `yaml:"extension" env:"EXTENSION"`
	MaxAge    int    `yaml:"maxage" env:"MAXAGE" validate:"gte=0"` // in hours, 0 = no cleanup
}

// Decoder converts the cached bytes of a tile
type Decoder[T any] func(r io.Reader) (T, error)

// Cache a bounded, disk persisted set of tiles in LRU order.
// The tracked ids and the files under the root always agree.
type Cache struct {
	log    *slog.Logger
	path   string
	ext    string
	size   int
	maxage int // in hours

	lock  sync.Mutex
	tiles *lruset.Set[mercantile.TileID]

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

func Init(inj do.Injector) {
	cfg := do.MustInvoke[*Config](inj)
	c, err := New(*cfg)
	if err != nil {
		panic(err)
	}
	do.ProvideValue(inj, c)
}

// New creates the cache, walks the root directory and takes over the tiles found there
func New(cfg Config) (*Cache, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	c := &Cache{
		log:    logging.New("tilecache"),
		path:   cfg.Path,
		ext:    strings.TrimPrefix(cfg.Extension, "."),
		size:   cfg.Size,
		maxage: cfg.MaxAge,
		tiles:  lruset.New[mercantile.TileID](cfg.Size),
		stop:   make(chan struct{}),
	}
	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return nil, errors.Wrapf(ErrIO, "creating cache root %s: %v", c.path, err)
	}
	if err := c.traverse(); err != nil {
		return nil, err
	}
	c.log.Info("tile cache ready", "path", c.path, "tiles", c.tiles.Len(), "size", c.size)
	metrics.CacheSize.Set(float64(c.tiles.Len()))
	if c.maxage > 0 {
		c.startCacheCleanupJob()
	}
	return c, nil
}

func (c *Cache) traverse() error {
	return filepath.WalkDir(c.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		id, ok := c.parseFilename(path)
		if !ok {
			return nil
		}
		for _, ev := range c.tiles.Push(id) {
			c.deleteFile(ev)
		}
		return nil
	})
}

func (c *Cache) startCacheCleanupJob() {
	c.done.Add(1)
	go func() {
		defer c.done.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				n, err := c.CleanupOldFiles(time.Duration(c.maxage) * time.Hour)
				if err != nil {
					c.log.Error("cache cleanup error", "error", err)
				} else if n > 0 {
					c.log.Info("cache cleanup completed", "removed", n)
				}
			}
		}
	}()
}

func (c *Cache) Contains(id mercantile.TileID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tiles.Contains(id)
}

// Touch marks the tile as recently used, unknown tiles are ignored
func (c *Cache) Touch(id mercantile.TileID) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tiles.Touch(id)
}

func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tiles.Len()
}

func (c *Cache) Size() int {
	return c.size
}

// IDs the tracked tiles, least recently used first
func (c *Cache) IDs() []mercantile.TileID {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tiles.Items()
}

// Put stores the tile data and marks the tile as most recently used.
// If this overflows the cache, it is shrunk by a quarter in one pass.
func (c *Cache) Put(id mercantile.TileID, data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	fn := c.filename(id)
	if err := writeFile(fn, data); err != nil {
		return errors.Wrapf(ErrIO, "writing %s: %v", fn, err)
	}
	metrics.CacheStores.Inc()

	c.tiles.Append(id)
	if c.tiles.Len() > c.size {
		for _, ev := range c.tiles.Shrink(c.size - c.size/4) {
			c.deleteFile(ev)
		}
	}
	metrics.CacheSize.Set(float64(c.tiles.Len()))
	return nil
}

// Get reads the cached data of the tile
func (c *Cache) Get(id mercantile.TileID) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.tiles.Contains(id) {
		metrics.CacheMisses.Inc()
		return nil, ErrNotFound
	}
	fn := c.filename(id)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("cached tile file is missing", "tile", id.String(), "file", fn)
			c.tiles.Remove(id)
			metrics.CacheSize.Set(float64(c.tiles.Len()))
			return nil, errors.Wrapf(ErrInconsistent, "tile %s", id)
		}
		return nil, errors.Wrapf(ErrIO, "reading %s: %v", fn, err)
	}
	metrics.CacheHits.Inc()
	return data, nil
}

// Decode reads the tile from cache and converts it with dec
func Decode[T any](c *Cache, id mercantile.TileID, dec Decoder[T]) (T, error) {
	var zero T
	data, err := c.Get(id)
	if err != nil {
		return zero, err
	}
	v, err := dec(bytes.NewReader(data))
	if err != nil {
		return zero, errors.Wrapf(err, "decoding tile %s", id)
	}
	return v, nil
}

// Remove deletes the tile from the cache
func (c *Cache) Remove(id mercantile.TileID) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.tiles.Remove(id) {
		return ErrNotFound
	}
	metrics.CacheSize.Set(float64(c.tiles.Len()))
	if err := os.Remove(c.filename(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(ErrIO, "removing %s: %v", id, err)
	}
	return nil
}

// CleanupOldFiles removes all tiles whose files are older than the given duration
func (c *Cache) CleanupOldFiles(olderThan time.Duration) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	now := time.Now()
	removed := 0
	for _, id := range c.tiles.Items() {
		fi, err := os.Stat(c.filename(id))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.tiles.Remove(id)
				removed++
				continue
			}
			return removed, errors.Wrapf(ErrIO, "stat %s: %v", id, err)
		}
		if now.Sub(fi.ModTime()) > olderThan {
			c.log.Debug("removing old cache file", "tile", id.String())
			c.tiles.Remove(id)
			c.deleteFile(id)
			removed++
		}
	}
	metrics.CacheSize.Set(float64(c.tiles.Len()))
	return removed, nil
}

// Close stops the cleanup job
func (c *Cache) Close() error {
	c.once.Do(func() {
		close(c.stop)
	})
	c.done.Wait()
	return nil
}

func (c *Cache) filename(id mercantile.TileID) string {
	return filepath.Join(c.path, strconv.Itoa(id.Z), strconv.Itoa(id.X), strconv.Itoa(id.Y)+"."+c.ext)
}

// parseFilename parses {root}/{z}/{x}/{y}.{ext}
func (c *Cache) parseFilename(path string) (mercantile.TileID, bool) {
	rel, err := filepath.Rel(c.path, path)
	if err != nil {
		return mercantile.TileID{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return mercantile.TileID{}, false
	}
	ys, ok := strings.CutSuffix(parts[2], "."+c.ext)
	if !ok {
		return mercantile.TileID{}, false
	}
	var nums [3]int
	for i, s := range []string{parts[0], parts[1], ys} {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return mercantile.TileID{}, false
		}
		nums[i] = n
	}
	id := mercantile.TileID{Z: nums[0], X: nums[1], Y: nums[2]}
	return id, id.Valid()
}

func (c *Cache) deleteFile(id mercantile.TileID) {
	metrics.CacheEvictions.Inc()
	fn := c.filename(id)
	if err := os.Remove(fn); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Error("error removing file", "file", fn, "error", err)
	}
}

// writeFile writes to a temp file first, so a tile file is either complete or missing
func writeFile(fn string, data []byte) error {
	dir := filepath.Dir(fn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), fn); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
