package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/apiv1"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/controller"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/telemetry"
)

var logger = logging.New("api")

// APIRoutes the router of the api server
func APIRoutes(inj do.Injector) (*chi.Mux, error) {
	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return nil, err
	}
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		telemetry.Middleware,
		render.SetContentType(render.ContentTypeJSON),
	)
	router.Mount(apiv1.BaseURL, apiv1.Routes(inj))
	if cfg.Metrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	if err := chi.Walk(router, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("api route", "method", method, "route", route)
		return nil
	}); err != nil {
		return nil, err
	}
	return router, nil
}

type readiness interface {
	State() controller.State
	CurrentTile() (mercantile.TileID, bool)
}

// HealthRoutes the router of the health server
func HealthRoutes(inj do.Injector) *chi.Mux {
	ctrl, _ := do.InvokeAs[readiness](inj)
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ctrl == nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "not ready"})
			return
		}
		res := map[string]any{"status": "ok", "state": ctrl.State().String()}
		if id, ok := ctrl.CurrentTile(); ok {
			res["tile"] = id.String()
		}
		render.Status(r, http.StatusOK)
		render.JSON(w, r, res)
	})
	return router
}
