package provider

import (
	"strconv"
	"strings"
	"sync"

	"github.com/willie68/go_tilefeed/internal/mercantile"
)

// Resolver builds the location of a tile from a template
type Resolver func(template string, id mercantile.TileID) string

// DefaultResolver replaces {x}, {y}, {z}, {lat}, {lon} and {radius}. lat/lon is
// the center of the tile, radius five times the circumscribed radius of the
// tile in meters, enough to cover the 5x5 tiles around it.
func DefaultResolver(template string, id mercantile.TileID) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(id.X),
		"{y}", strconv.Itoa(id.Y),
		"{z}", strconv.Itoa(id.Z),
	)
	s := r.Replace(template)
	if !strings.Contains(s, "{lat}") && !strings.Contains(s, "{lon}") && !strings.Contains(s, "{radius}") {
		return s
	}
	lat, lon := mercantile.Center(id)
	radius := 5 * mercantile.CircumscribedRadiusMeters(id, id.Z)
	return strings.NewReplacer(
		"{lat}", formatFloat(lat),
		"{lon}", formatFloat(lon),
		"{radius}", formatFloat(radius),
	).Replace(s)
}

// TMSResolver like DefaultResolver, but {y} counts from the south
func TMSResolver(template string, id mercantile.TileID) string {
	y := strconv.Itoa(mercantile.FlipY(id).Y)
	return DefaultResolver(strings.ReplaceAll(template, "{y}", y), id)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// templater resolves the template of a provider, the resolver may be replaced at any time
type templater struct {
	lock     sync.RWMutex
	template string
	resolver Resolver
}

func newTemplater(template string, r Resolver) *templater {
	return &templater{template: template, resolver: r}
}

// SetResolver replaces the resolver, nil restores the default
func (t *templater) SetResolver(r Resolver) {
	if r == nil {
		r = DefaultResolver
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.resolver = r
}

func (t *templater) resolve(id mercantile.TileID) string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.resolver(t.template, id)
}
