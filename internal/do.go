package internal

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/camerafeed"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/controller"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/renderer"
	"github.com/willie68/go_tilefeed/internal/shttp"
	"github.com/willie68/go_tilefeed/internal/telemetry"
	"github.com/willie68/go_tilefeed/internal/tilecache"
	"github.com/willie68/go_tilefeed/internal/utils/measurement"
)

var log = logging.New("internal")

// lifecycle cancels the background loops started by Init
type lifecycle struct {
	cancel context.CancelFunc
}

// Init creates and wires all services, the config must be loaded before
func Init(inj do.Injector) {
	ctx, cancel := context.WithCancel(context.Background())
	do.ProvideValue(inj, &lifecycle{cancel: cancel})

	config.Init(inj)
	logging.Init(inj)
	cfg := do.MustInvoke[*config.Config](inj)
	ver := do.MustInvoke[config.Version](inj)

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, ver.Version)
	if err != nil {
		log.Error(fmt.Sprintf("telemetry disabled: %v", err))
		shutdown = func(context.Context) error { return nil }
	}
	do.ProvideValue(inj, shutdown)

	ms := measurement.New(cfg.Measurement)
	do.ProvideValue(inj, ms)

	provider.Init(inj)
	factory := do.MustInvoke[*provider.Factory](inj)
	tp, err := factory.TileProvider(cfg.Active.Tiles)
	if err != nil {
		panic(err)
	}

	// every tile source gets its own cache directory
	cc := cfg.Cache
	cc.Path = filepath.Join(cc.Path, tp.Namespace())
	do.ProvideValue(inj, &cc)
	tilecache.Init(inj)
	cache := do.MustInvoke[*tilecache.Cache](inj)

	hub := renderer.NewHub(ctx)
	do.ProvideValue(inj, hub)

	ctrl := controller.New(cache, hub,
		controller.WithZoom(cfg.Controller.Zoom),
		controller.WithRadius(cfg.Controller.Radius),
		controller.WithMeasurement(ms),
	)
	hub.SetInput(ctrl)
	ctrl.SetTileProvider(tp)
	for _, n := range cfg.Active.Pois {
		pp, err := factory.PoiProvider(n)
		if err != nil {
			panic(err)
		}
		ctrl.AddPoiProvider(pp)
	}
	do.ProvideValue(inj, ctrl)

	if cfg.Redis.Enabled {
		sub, err := camerafeed.New(cfg.Redis, ctrl)
		if err != nil {
			log.Error(fmt.Sprintf("camera feed disabled: %v", err))
		} else {
			do.ProvideValue(inj, sub)
			go func() {
				if err := sub.Start(ctx); err != nil {
					log.Error(fmt.Sprintf("camera feed stopped: %v", err))
				}
			}()
		}
	}

	shttp.Init(inj)
	log.Info("services initialised", "tiles", tp.Name(), "cache", cc.Path, "pois", len(cfg.Active.Pois))
}

// Stop shuts all services down in reverse order of creation
func Stop(inj do.Injector) {
	if lc, err := do.Invoke[*lifecycle](inj); err == nil {
		lc.cancel()
	}
	if sub, err := do.Invoke[*camerafeed.Subscriber](inj); err == nil {
		if err := sub.Close(); err != nil {
			log.Error(fmt.Sprintf("error on close camera feed: %v", err))
		}
	}
	if ctrl, err := do.Invoke[*controller.Controller](inj); err == nil {
		_ = ctrl.Close()
	}
	if hub, err := do.Invoke[*renderer.Hub](inj); err == nil {
		hub.Shutdown()
	}
	if f, err := do.Invoke[*provider.Factory](inj); err == nil {
		if err := f.Close(); err != nil {
			log.Error(fmt.Sprintf("error on close providers: %v", err))
		}
	}
	if tc, err := do.Invoke[*tilecache.Cache](inj); err == nil {
		if err := tc.Close(); err != nil {
			log.Error(fmt.Sprintf("error on close tilecache: %v", err))
		}
	}
	if shutdown, err := do.Invoke[telemetry.Shutdown](inj); err == nil {
		if err := shutdown(context.Background()); err != nil {
			log.Error(fmt.Sprintf("error on telemetry shutdown: %v", err))
		}
	}
}
