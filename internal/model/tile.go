package model

import (
	"fmt"

	"github.com/willie68/go_tilefeed/internal/mercantile"
)

// Tile raw encoded image payload of one tile
type Tile struct {
	ID   mercantile.TileID
	Data []byte
}

// NewTile creates a tile, the payload is copied so the tile stays immutable
func NewTile(id mercantile.TileID, data []byte) Tile {
	d := make([]byte, len(data))
	copy(d, data)
	return Tile{ID: id, Data: d}
}

func (t *Tile) String() string {
	return fmt.Sprintf("Z:%d, X:%d, Y:%d, %d bytes", t.ID.Z, t.ID.X, t.ID.Y, len(t.Data))
}
