// Package gateway wires the cache, hub, config controller, poller manager,
// and TCP server into one running process and owns its start/stop
// lifecycle, so cmd/gateway/main.go stays a thin entry point.
package gateway

import (
	"context"
	"fmt"
	"net"

	"github.com/tamzrod/scada-gateway/internal/cache"
	"github.com/tamzrod/scada-gateway/internal/config"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
	"github.com/tamzrod/scada-gateway/internal/hub"
	"github.com/tamzrod/scada-gateway/internal/ids"
	"github.com/tamzrod/scada-gateway/internal/poller"
	"github.com/tamzrod/scada-gateway/internal/server"
)

// Options configures a Server before Run.
type Options struct {
	ConfigPath string
	ListenAddr string
	Log        *gatewaylog.Logger
}

// Server is one running gateway process: the shared cache and hub, the
// config controller that owns adapter (re)binding, the poller manager that
// runs them, and the TCP server that exposes them externally.
type Server struct {
	opts Options

	cache   *cache.Cache
	hub     *hub.Hub
	ctrl    *config.Controller
	pollers *poller.Manager
	tcp     *server.Server
}

// New constructs a Server without loading the config; Run loads it before
// starting anything else.
func New(opts Options) *Server {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":8080"
	}
	c := cache.New()
	h := hub.New(c, func(msg string) {
		if opts.Log != nil {
			opts.Log.Warningf(msg)
		}
	})
	ctrl := config.New(ids.New(), c, h, opts.Log)
	pollers := poller.NewManager(opts.Log)
	ctrl.OnRebind(pollers.Rebind)

	return &Server{
		opts:    opts,
		cache:   c,
		hub:     h,
		ctrl:    ctrl,
		pollers: pollers,
		tcp:     server.New(opts.ListenAddr, c, h, ctrl, opts.Log),
	}
}

// Run loads the config, starts the hot-reload watcher and poller fleet,
// and blocks serving TCP connections until ctx is cancelled. It returns
// the listener error, if any, or nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	if err := s.ctrl.Load(s.opts.ConfigPath); err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go s.ctrl.Watch(watchCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.tcp.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		return nil
	case err := <-errCh:
		s.shutdown()
		return err
	}
}

// Addr returns the TCP listener's bound address, or nil before Run has
// started listening. Test and diagnostic use.
func (s *Server) Addr() net.Addr {
	return s.tcp.Addr()
}

func (s *Server) shutdown() {
	_ = s.tcp.Close()
	s.pollers.Stop()
	s.hub.Shutdown()
}
