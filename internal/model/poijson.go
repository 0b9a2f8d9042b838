package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// ErrMalformed a poi document couldn't be parsed
var ErrMalformed = errors.New("malformed poi document")

type poiRecord struct {
	Sid   string          `json:"sid"`
	Shape string          `json:"shape"`
	Icon  string          `json:"icon,omitempty"`
	Lat   *float64        `json:"lat"`
	Lon   *float64        `json:"lon"`
	Alt   float64         `json:"alt"`
	Color json.RawMessage `json:"color,omitempty"`
}

type poiDocument struct {
	Pois []poiRecord `json:"POIs"`
}

// DecodePois reads a json array of poi records. The wrapped form {"POIs": [...]}
// is accepted too.
func DecodePois(r io.Reader) ([]Poi, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading poi document")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Poi{}, nil
	}
	var records []poiRecord
	switch data[0] {
	case '[':
		err = json.Unmarshal(data, &records)
	case '{':
		var doc poiDocument
		err = json.Unmarshal(data, &doc)
		records = doc.Pois
	default:
		return nil, errors.Wrapf(ErrMalformed, "unexpected start %q", data[0])
	}
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}

	pois := make([]Poi, 0, len(records))
	for i, rec := range records {
		p, err := rec.toPoi()
		if err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		pois = append(pois, p)
	}
	return pois, nil
}

// EncodePois writes pois as json array
func EncodePois(w io.Writer, pois []Poi) error {
	records := make([]poiRecord, 0, len(pois))
	for _, p := range pois {
		lat, lon := p.Lat, p.Lon
		c, _ := json.Marshal(p.Color.Hex())
		records = append(records, poiRecord{
			Sid:   p.ID,
			Shape: p.ShapeID,
			Icon:  p.IconID,
			Lat:   &lat,
			Lon:   &lon,
			Alt:   p.Alt,
			Color: c,
		})
	}
	return json.NewEncoder(w).Encode(records)
}

func (r poiRecord) toPoi() (Poi, error) {
	if r.Lat == nil || r.Lon == nil {
		return Poi{}, errors.Wrap(ErrMalformed, "missing lat/lon")
	}
	color, err := parseColor(r.Color)
	if err != nil {
		return Poi{}, errors.Wrapf(ErrMalformed, "%v", err)
	}
	return NewPoiBuilder().
		ID(r.Sid).
		Shape(r.Shape).
		Icon(r.Icon).
		Color(color).
		Position(*r.Lat, *r.Lon, r.Alt).
		Build(), nil
}

func parseColor(raw json.RawMessage) (RGB, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Magenta, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseRGB(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return RGB{}, fmt.Errorf("invalid color: %s", raw)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid color: %s", raw)
	}
	return RGBFromInt(v), nil
}
