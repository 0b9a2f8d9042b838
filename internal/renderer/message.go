package renderer

import (
	"encoding/json"

	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

// message types send to the clients
const (
	TypeTile          = "tile"
	TypePois          = "pois"
	TypePoiSelected   = "poi-selected"
	TypePoiDeselected = "poi-deselected"
)

// message types received from the clients
const (
	TypeCamera   = "camera"
	TypeSelect   = "select"
	TypeDeselect = "deselect"
	TypeRequest  = "request"
)

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type TileData struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

type PoiData struct {
	ID    string  `json:"id"`
	Shape string  `json:"shape"`
	Icon  string  `json:"icon,omitempty"`
	Color string  `json:"color"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
}

type SelectionData struct {
	ID string `json:"id"`
}

type CameraData struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

func newMessage(typ string, data any) Message {
	raw, _ := json.Marshal(data)
	return Message{Type: typ, Data: raw}
}

func tileData(id mercantile.TileID) TileData {
	return TileData{Z: id.Z, X: id.X, Y: id.Y}
}

func (t TileData) TileID() mercantile.TileID {
	return mercantile.TileID{X: t.X, Y: t.Y, Z: t.Z}
}

func poiData(pois []model.Poi) []PoiData {
	res := make([]PoiData, 0, len(pois))
	for _, p := range pois {
		res = append(res, PoiData{
			ID:    p.ID,
			Shape: p.ShapeID,
			Icon:  p.IconID,
			Color: p.Color.Hex(),
			Lat:   p.Lat,
			Lon:   p.Lon,
			Alt:   p.Alt,
		})
	}
	return res
}
