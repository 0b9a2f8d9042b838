package apiv1

import (
	"github.com/go-chi/chi/v5"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/controller"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/renderer"
	"github.com/willie68/go_tilefeed/internal/tilecache"
	"github.com/willie68/go_tilefeed/internal/utils/measurement"
)

// defining all sub pathes for api v1
const (
	// APIVersion the actual implemented api version
	APIVersion = "1"
	// BaseURL all v1 routes are mounted here
	BaseURL = "/api/v1"
)

var logger = logging.New("apiv1")

// Handler a http REST interface handler
type Handler interface {
	// Routes get the routes
	Routes() (string, *chi.Mux)
}

// Routes all v1 handlers, wired from the injector
func Routes(inj do.Injector) *chi.Mux {
	ctrl := do.MustInvoke[*controller.Controller](inj)
	cfg := do.MustInvoke[*config.Config](inj)
	handlers := []Handler{
		NewCameraHandler(ctrl),
		NewTilesHandler(ctrl, do.MustInvoke[*tilecache.Cache](inj)),
		NewPoisHandler(ctrl),
		NewProvidersHandler(do.MustInvoke[*provider.Factory](inj), cfg.Providers, cfg.Active.Tiles, cfg.Active.Pois),
		NewEventsHandler(do.MustInvoke[*renderer.Hub](inj)),
	}
	router := chi.NewRouter()
	for _, h := range handlers {
		p, r := h.Routes()
		router.Mount(p, r)
	}
	router.Mount("/measurement", measurement.Routes(do.MustInvoke[*measurement.Service](inj)))
	return router
}
