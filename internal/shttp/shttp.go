package shttp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/do/v2"
	"github.com/willie68/go_tilefeed/internal/config"
	"github.com/willie68/go_tilefeed/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// SHttp runs the api server and the health server
type SHttp struct {
	log        *slog.Logger
	port       int
	healthport int

	lock    sync.Mutex
	servers []*http.Server
	addrs   []net.Addr
	wg      sync.WaitGroup
}

func Init(inj do.Injector) {
	cfg := do.MustInvoke[*config.Config](inj)
	do.ProvideValue(inj, New(cfg.Port, cfg.Healthport))
}

// New a server pair, a port of 0 disables the server
func New(port, healthport int) *SHttp {
	return &SHttp{
		log:        logging.New("shttp"),
		port:       port,
		healthport: healthport,
	}
}

// StartServers starts listening, serving happens in the background
func (s *SHttp) StartServers(router, healthRouter http.Handler) error {
	if err := s.start("api", s.port, router); err != nil {
		s.ShutdownServers()
		return err
	}
	if err := s.start("health", s.healthport, healthRouter); err != nil {
		s.ShutdownServers()
		return err
	}
	return nil
}

func (s *SHttp) start(name string, port int, handler http.Handler) error {
	if port <= 0 || handler == nil {
		s.log.Info(fmt.Sprintf("%s server disabled", name))
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "%s server can't listen on port %d", name, port)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.lock.Lock()
	s.servers = append(s.servers, srv)
	s.addrs = append(s.addrs, ln.Addr())
	s.lock.Unlock()

	s.wg.Go(func() {
		s.log.Info(fmt.Sprintf("%s server is running", name), "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(fmt.Sprintf("%s server failed to serve", name), "error", err)
		}
	})
	return nil
}

// Addrs the addresses the servers listen on
func (s *SHttp) Addrs() []net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]net.Addr{}, s.addrs...)
}

// ShutdownServers gracefully stops all running servers
func (s *SHttp) ShutdownServers() {
	s.lock.Lock()
	servers := s.servers
	s.servers = nil
	s.addrs = nil
	s.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Error("server failed to shutdown", "error", err)
		}
	}
	s.wg.Wait()
}
