// camera feeder, publishes a route of camera positions to the redis topic of a
// running tile feed
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/willie68/go_tilefeed/internal/camerafeed"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/prefetch"
)

var (
	configFile  string
	showVersion bool
	route       string
	interval    time.Duration
	altitude    float64
	loop        bool
)

func init() {
	flag.BoolVarP(&showVersion, "version", "v", false, "showing the version")
	flag.StringVarP(&configFile, "config", "c", "config.yaml", "this is the path and filename to the config file")
	flag.StringVarP(&route, "route", "r", "", "the camera positions, lat,lon pairs separated by ;")
	flag.DurationVarP(&interval, "interval", "i", time.Second, "time between two positions")
	flag.Float64VarP(&altitude, "alt", "a", 0, "altitude of the camera")
	flag.BoolVarP(&loop, "loop", "l", false, "repeat the route until interrupted")
}

func main() {
	flag.Parse()
	if showVersion {
		fmt.Println(config.NewVersion().String())
		fmt.Println("more on https://github.com/willie68/go_tilefeed")
		os.Exit(0)
	}
	err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\r\n", err)
		os.Exit(1)
	}
	points, err := prefetch.ParsePoints(route)
	if err != nil || len(points) == 0 {
		fmt.Fprintf(os.Stderr, "no valid route given: %v\r\n", err)
		flag.PrintDefaults()
		os.Exit(1)
	}

	feed, err := camerafeed.New(config.Get().Redis, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\r\n", err)
		os.Exit(1)
	}
	defer feed.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, p := range points {
			if err := feed.Publish(ctx, p.Lat, p.Lon, altitude); err != nil {
				fmt.Fprintf(os.Stderr, "error publishing position: %v\r\n", err)
				return
			}
			fmt.Printf("camera at %f, %f\n", p.Lat, p.Lon)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
		if !loop {
			return
		}
	}
}
