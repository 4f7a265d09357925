// Package debugsrv runs the optional debug HTTP listener: pprof handlers,
// a liveness probe and a JSON status document.
package debugsrv

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"sync"
	"time"

	logx "digestbot/pkg/logx"
)

const DefaultAddress = "127.0.0.1:6060"

type Config struct {
	Enabled              bool
	Address              string
	BlockProfileRate     int
	MutexProfileFraction int
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	return c
}

// StatusFunc returns the document served at /status. It must be safe for
// concurrent use.
type StatusFunc func() any

// Server manages the lifecycle of the debug listener.
type Server struct {
	mu     sync.Mutex
	log    logx.Logger
	status StatusFunc
	srv    *http.Server
	ln     net.Listener
	addr   string
}

func New(log logx.Logger, status StatusFunc) *Server {
	return &Server{log: log, status: status}
}

// Apply starts, stops or moves the listener according to cfg and updates
// the runtime profile rates.
func (s *Server) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	// profile knobs apply even when the listener is off
	runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return
	}
	if s.srv != nil && s.addr == cfg.Address {
		return
	}
	s.stopLocked(ctx)
	s.startLocked(cfg)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		var doc any = struct{}{}
		if s.status != nil {
			doc = s.status()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			s.log.Debug("status encode failed", logx.Err(err))
		}
	})
	return mux
}

func (s *Server) startLocked(cfg Config) {
	ln, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		s.log.Warn("debug listen failed", logx.String("addr", cfg.Address), logx.Err(err))
		return
	}
	srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 5 * time.Second}

	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("debug server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("debug server enabled", logx.String("addr", addr))
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("debug server shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("debug server disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
