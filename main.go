package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	flag "github.com/spf13/pflag"
	"github.com/willie68/go_tilefeed/configs"
	"github.com/willie68/go_tilefeed/internal"
	"github.com/willie68/go_tilefeed/internal/api"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/controller"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/prefetch"
	"github.com/willie68/go_tilefeed/internal/provider"
	"github.com/willie68/go_tilefeed/internal/shttp"
	"github.com/willie68/go_tilefeed/internal/tilecache"
	"github.com/willie68/go_tilefeed/pkg/fileutils"
)

var (
	log         *slog.Logger
	configFile  string
	showVersion bool
	initConfig  bool
	warm        string
	warmRadius  int
	port        int
)

func init() {
	flag.BoolVarP(&initConfig, "init", "i", false, "init config, writes out a default config.")
	flag.BoolVarP(&showVersion, "version", "v", false, "showing the version")
	flag.StringVarP(&configFile, "config", "c", "config.yaml", "this is the path and filename to the config file")
	flag.IntVarP(&port, "port", "p", 0, "overwrite the port (8580) of the config")
	flag.StringVarP(&warm, "warm", "w", "", "warm the cache around positions, lat,lon pairs separated by ;")
	flag.IntVarP(&warmRadius, "radius", "r", 2, "radius in tiles around each warm position")
	flag.Usage = func() {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		fmt.Println("more on https://github.com/willie68/go_tilefeed")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("examples:")
		fmt.Println("write the default config, set the active providers and the cache path, than run")
		fmt.Printf("%s -i > config.yaml\n", os.Args[0])
		fmt.Printf("%s -c config.yaml\n", os.Args[0])
		fmt.Println("warm the cache around the eiffel tower and the brandenburg gate, 3 tiles in every direction")
		fmt.Printf("%s -c config.yaml -w \"48.8584,2.2945;52.5163,13.3777\" -r 3\n", os.Args[0])
	}
}

func main() {
	flag.Parse()
	if showVersion {
		fmt.Println(config.NewVersion().String())
		os.Exit(0)
	}
	if initConfig {
		fmt.Println(configs.ConfigFile)
		os.Exit(0)
	}
	if !fileutils.FileExists(configFile) {
		fmt.Fprint(os.Stderr, "no config given or doesn't exists.\r\n\r\n")
		flag.Usage()
		os.Exit(1)
	}
	err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\r\n", err)
		os.Exit(1)
	}

	config.SetParameter(config.WithPort(port))
	js := config.JSON()
	if js == "" {
		panic("error on marshal config to json")
	}
	fmt.Printf("Config:\n%s\n", js)
	log = logging.New("main")
	log.Info("starting tile feed", "version", config.NewVersion().String())

	inj := do.New()
	internal.Init(inj)

	if warm != "" {
		warmCache(inj)
	}

	router, err := api.APIRoutes(inj)
	if err != nil {
		log.Error(fmt.Sprintf("could not create api routes: %v", err))
		os.Exit(1)
	}
	healthRouter := api.HealthRoutes(inj)

	sh := do.MustInvoke[*shttp.SHttp](inj)
	if err := sh.StartServers(router, healthRouter); err != nil {
		log.Error(fmt.Sprintf("could not start servers: %v", err))
		internal.Stop(inj)
		os.Exit(1)
	}

	log.Info("waiting for clients")
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	sh.ShutdownServers()
	log.Info("server finished")

	internal.Stop(inj)
	os.Exit(0)
}

func warmCache(inj do.Injector) {
	active := config.Get().Active.Tiles
	if !do.MustInvoke[*provider.Factory](inj).IsPrefetchable(active) {
		log.Warn("the usage policy of the tile provider forbids bulk downloads, no warming", "provider", active)
		return
	}
	points, err := prefetch.ParsePoints(warm)
	if err != nil {
		log.Error(fmt.Sprintf("can't warm cache: %v", err))
		return
	}
	w := prefetch.New(do.MustInvoke[*controller.Controller](inj), do.MustInvoke[*tilecache.Cache](inj))
	w.Warm(points, warmRadius)
}
