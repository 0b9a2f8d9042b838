package assets

import (
	"bytes"
	"embed"
	"io"
	"io/fs"
)

//go:embed empty.png
var emptyPNG []byte

//go:embed tiles
var tiles embed.FS

// EmptyPNG a neutral 256x256 tile
func EmptyPNG() io.ReadCloser {
	return io.NopCloser(io.Reader(bytes.NewReader(emptyPNG)))
}

// Tiles the bundled tiles as {z}/{x}/{y}.png
func Tiles() fs.FS {
	sub, err := fs.Sub(tiles, "tiles")
	if err != nil {
		panic(err)
	}
	return sub
}
