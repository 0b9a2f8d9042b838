// Package mercantile converts between geographic coordinates and slippy map tiles
// (Web-Mercator, XYZ scheme).
package mercantile

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// EquatorLength is the earth's equatorial circumference in meters
	EquatorLength = 40075016.686
	// MaxLatitude is the northern and southern limit of the Web-Mercator projection
	MaxLatitude = 85.05112878
	// MaxZoom highest supported zoom level
	MaxZoom = 30

	earthRadius = 6378137.0
)

// ErrDomain is returned for coordinates the projection can't represent
var ErrDomain = errors.New("coordinate out of projection domain")

// TileID identifies one tile of the quad tree at zoom Z
type TileID struct {
	X int
	Y int
	Z int
}

// Bbox a bounding box, either in degrees or in EPSG:3857 meters
type Bbox struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

func (t TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Valid checks 0 <= x,y < 2^z
func (t TileID) Valid() bool {
	if t.Z < 0 || t.Z > MaxZoom {
		return false
	}
	n := 1 << t.Z
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// LonToTileX returns the tile column of the longitude, zoom is clamped to 0..MaxZoom
func LonToTileX(lon float64, zoom int) int {
	n := 1 << clampZoom(zoom)
	x := int(math.Floor((lon + 180) / 360 * float64(n)))
	return clamp(x, n)
}

// LatToTileY returns the tile row of the latitude
func LatToTileY(lat float64, zoom int) int {
	n := 1 << clampZoom(zoom)
	r := lat * math.Pi / 180
	y := int(math.Floor((1 - math.Log(math.Tan(r)+1/math.Cos(r))/math.Pi) / 2 * float64(n)))
	return clamp(y, n)
}

// TileToLon longitude of the west edge of column x
func TileToLon(x, zoom int) float64 {
	return float64(x)/math.Pow(2, float64(zoom))*360 - 180
}

// TileToLat latitude of the north edge of row y
func TileToLat(y, zoom int) float64 {
	n := math.Pi - 2*math.Pi*float64(y)/math.Pow(2, float64(zoom))
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

// Tile returns the tile containing the point at the given zoom
func Tile(lat, lon float64, zoom int) (TileID, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return TileID{}, fmt.Errorf("%w: lat %v, lon %v", ErrDomain, lat, lon)
	}
	if lat < -MaxLatitude || lat > MaxLatitude {
		return TileID{}, fmt.Errorf("%w: latitude %f", ErrDomain, lat)
	}
	if lon < -180 || lon > 180 {
		return TileID{}, fmt.Errorf("%w: longitude %f", ErrDomain, lon)
	}
	if zoom < 0 || zoom > MaxZoom {
		return TileID{}, fmt.Errorf("%w: zoom %d", ErrDomain, zoom)
	}
	return TileID{X: LonToTileX(lon, zoom), Y: LatToTileY(lat, zoom), Z: zoom}, nil
}

// UL the north west corner of the tile as lat, lon
func UL(t TileID) (float64, float64) {
	return TileToLat(t.Y, t.Z), TileToLon(t.X, t.Z)
}

// Center midpoint between the north west corner of the tile and the one of its south east neighbour
func Center(t TileID) (float64, float64) {
	lat1, lon1 := UL(t)
	lat2, lon2 := UL(TileID{X: t.X + 1, Y: t.Y + 1, Z: t.Z})
	return (lat1 + lat2) / 2, (lon1 + lon2) / 2
}

// TileSizeMeters edge length of a tile of the given zoom at the latitude of t
func TileSizeMeters(t TileID, zoom int) float64 {
	atEquator := EquatorLength / math.Pow(2, float64(zoom))
	lat := TileToLat(t.Y, t.Z)
	return atEquator * math.Cos(lat*math.Pi/180)
}

// CircumscribedRadiusMeters radius used for "search around tile" queries
func CircumscribedRadiusMeters(t TileID, zoom int) float64 {
	return TileSizeMeters(t, zoom) / math.Sqrt2
}

// ULBounds bounds of the tile in degrees
func ULBounds(t TileID) Bbox {
	b := maptile.New(uint32(t.X), uint32(t.Y), maptile.Zoom(t.Z)).Bound()
	return Bbox{Left: b.Left(), Bottom: b.Bottom(), Right: b.Right(), Top: b.Top()}
}

// XyBounds bounds of the tile in EPSG:3857 meters
func XyBounds(t TileID) Bbox {
	ul := ULBounds(t)
	left, top := toMercator(orb.Point{ul.Left, ul.Top})
	right, bottom := toMercator(orb.Point{ul.Right, ul.Bottom})
	return Bbox{Left: left, Bottom: bottom, Right: right, Top: top}
}

// Contains checks if the point lies within the tile, edges included
func (b Bbox) Contains(lat, lon float64) bool {
	return lon >= b.Left && lon <= b.Right && lat >= b.Bottom && lat <= b.Top
}

// Neighbours returns the (2r+1)^2 tiles around t, clipped to the grid. A tile
// with an invalid zoom has no neighbours.
func Neighbours(t TileID, radius int) []TileID {
	if t.Z < 0 || t.Z > MaxZoom || radius < 0 {
		return []TileID{}
	}
	n := 1 << t.Z
	res := make([]TileID, 0, (2*radius+1)*(2*radius+1))
	for x := t.X - radius; x <= t.X+radius; x++ {
		if x < 0 || x >= n {
			continue
		}
		for y := t.Y - radius; y <= t.Y+radius; y++ {
			if y < 0 || y >= n {
				continue
			}
			res = append(res, TileID{X: x, Y: y, Z: t.Z})
		}
	}
	return res
}

// FlipY converts between XYZ and TMS row numbering, tiles with an invalid zoom
// are returned unchanged
func FlipY(t TileID) TileID {
	if t.Z < 0 || t.Z > MaxZoom {
		return t
	}
	t.Y = (1 << t.Z) - t.Y - 1
	return t
}

// Parent returns the tile at the lower zoom containing t. For a zoom at or
// above t.Z, t is returned.
func Parent(t TileID, zoom int) TileID {
	zoom = clampZoom(zoom)
	if zoom >= t.Z {
		return t
	}
	d := t.Z - zoom
	return TileID{X: t.X >> d, Y: t.Y >> d, Z: zoom}
}

// DistanceMeters great circle distance between two points
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadius
}

func toMercator(p orb.Point) (float64, float64) {
	x := earthRadius * p.Lon() * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+p.Lat()*math.Pi/360))
	return x, y
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func clampZoom(zoom int) int {
	return clamp(zoom, MaxZoom+1)
}
