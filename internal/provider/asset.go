package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/assets"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

// assetProvider reads tiles {z}/{x}/{y}.{ext} from a file system
type assetProvider struct {
	*Fetcher[TileEvent]
	fsys fs.FS
	src  string
	ext  string
}

// NewAssetProvider serves tiles of the directory config.Path, without a path
// the bundled tiles are used
func NewAssetProvider(name string, config Config) *assetProvider {
	if config.Path == "" {
		return NewFSProvider(name, assets.Tiles(), "bundled", config)
	}
	return NewFSProvider(name, os.DirFS(config.Path), config.Path, config)
}

// NewFSProvider serves tiles from fsys, src names the source for the namespace
func NewFSProvider(name string, fsys fs.FS, src string, config Config) *assetProvider {
	ext := config.Extension
	if ext == "" {
		ext = "png"
	}
	s := &assetProvider{
		fsys: fsys,
		src:  src,
		ext:  ext,
	}
	s.Fetcher = newFetcher[TileEvent](name, config, s.load, tileFailed)
	return s
}

func (s *assetProvider) Namespace() string {
	return uuid.NewMD5(uuid.NameSpaceURL, []byte("asset:"+s.src)).String()
}

func (s *assetProvider) load(_ context.Context, id mercantile.TileID) TileEvent {
	fn := fmt.Sprintf("%d/%d/%d.%s", id.Z, id.X, id.Y, s.ext)
	data, err := fs.ReadFile(s.fsys, fn)
	if err != nil {
		return tileFailed(id, errors.Wrapf(ErrProviderFetch, "asset %s: %v", fn, err))
	}
	tile := model.NewTile(id, data)
	return TileEvent{ID: id, Tile: &tile}
}
