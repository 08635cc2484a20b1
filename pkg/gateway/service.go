// Package gateway exposes browser sessions over HTTP. Hosts that keep their
// keys to themselves attach signing boxes over a websocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"debotbrowser/pkg/config"
	"debotbrowser/pkg/session"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 18791

	shutdownTimeout = 5 * time.Second
)

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	sessions *session.Registry
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	startedAt time.Time
	addr      string
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Address       string `json:"address,omitempty"`
}

func NewService(cfg *config.Config, sessions *session.Registry, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		cfg:      cfg,
		log:      log.With("component", "gateway.service"),
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP routes of the gateway.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/run", s.handleRunOnce)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Route("/{handle}", func(r chi.Router) {
				r.Delete("/", s.handleDestroySession)
				r.Post("/run", s.handleRun)
				r.Post("/start", s.handleStart)
				r.Put("/settings", s.handleUpdateSettings)
				r.Get("/host", s.handleHost)
				r.Post("/signing-boxes", s.handleRegisterKeyBox)
				r.Get("/signing-boxes/{box}", s.handleSigningBoxPublicKey)
				r.Delete("/signing-boxes/{box}", s.handleCloseSigningBox)
			})
		})

		r.Route("/crypto", func(r chi.Router) {
			r.Post("/keypair", s.handleGenerateKeyPair)
			r.Post("/sign", s.handleSign)
			r.Post("/sha256", s.handleSHA256)
			r.Post("/scrypt", s.handleScrypt)
			r.Post("/chacha20", s.handleChaCha20)
			r.Post("/random", s.handleRandomBytes)
		})
	})

	return r
}

// Run serves the gateway until ctx ends, then destroys every session.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.sessions.Close()

	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHost
	}
	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultPort
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("Gateway started", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	s.log.Info("Gateway stopped")
	return err
}

// Addr returns the address the gateway listens on, once Run has bound it.
func (s *Service) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	respondJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Sessions:      s.sessions.Len(),
		Address:       s.addr,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.startedAt.IsZero()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
