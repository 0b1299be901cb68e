// Package server wires the mission service runtime: storage backend,
// generator, lifecycle controller, HTTP API and gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chaosarchitect/missions/internal/platform/timeouts"
	"github.com/chaosarchitect/missions/internal/services/missions/api/httpapi"
	"github.com/chaosarchitect/missions/internal/services/missions/api/mcpapi"
	"github.com/chaosarchitect/missions/internal/services/missions/generator"
	"github.com/chaosarchitect/missions/internal/services/missions/lifecycle"
	"github.com/chaosarchitect/missions/internal/services/missions/metrics"
	"github.com/chaosarchitect/missions/internal/services/missions/roster"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
	missionsbadger "github.com/chaosarchitect/missions/internal/services/missions/storage/badger"
	missionssqlite "github.com/chaosarchitect/missions/internal/services/missions/storage/sqlite"
)

// Storage backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// healthServiceName is reported alongside the overall serving status.
const healthServiceName = "missions"

// Config holds resolved runtime settings. It is built once at startup.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StoreBackend string
	DBPath       string
	BadgerDir    string
	// RosterPath, when set, is imported into the student directory at startup.
	RosterPath string

	Generator         generator.Config
	GenerationTimeout time.Duration

	Version string
}

// Server hosts the mission HTTP API and the gRPC health endpoint.
type Server struct {
	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	backend      storage.Backend
}

// New creates a configured server with bound listeners.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}
	if err := importRoster(ctx, backend, cfg.RosterPath); err != nil {
		_ = backend.Close()
		return nil, err
	}
	gen, err := NewGenerator(cfg.Generator)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	registry := metrics.NewRegistry()
	opts := []lifecycle.Option{lifecycle.WithMetrics(metrics.New(registry))}
	if cfg.GenerationTimeout > 0 {
		opts = append(opts, lifecycle.WithGenerationTimeout(cfg.GenerationTimeout))
	}
	controller := lifecycle.NewController(backend, backend, gen, opts...)

	api := httpapi.NewServer(controller, httpapi.Options{
		Metrics: metrics.Handler(registry),
		MCP:     mcpapi.HTTPHandler(mcpapi.NewServer(controller, cfg.Version)),
	})

	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpListener.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("listen on grpc addr %s: %w", cfg.GRPCAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		httpListener: httpListener,
		httpServer: &http.Server{
			Handler:           api.Handler(),
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		grpcListener: grpcListener,
		grpcServer:   grpcServer,
		health:       healthServer,
		backend:      backend,
	}, nil
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC health address.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Run creates and serves a mission server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve runs both listeners and blocks until one fails or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeBackend()

	log.Printf("missions HTTP server listening at %v", s.httpListener.Addr())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	log.Printf("missions health server listening at %v", s.grpcListener.Addr())
	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- s.grpcServer.Serve(s.grpcListener)
	}()

	handleGRPC := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
	handleHTTP := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
	shutdownGRPC := func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown missions HTTP server: %v", err)
		}
	}

	select {
	case <-ctx.Done():
		shutdownHTTP()
		shutdownGRPC()
		return errors.Join(handleHTTP(<-httpErr), handleGRPC(<-grpcErr))
	case err := <-httpErr:
		shutdownGRPC()
		return errors.Join(handleHTTP(err), handleGRPC(<-grpcErr))
	case err := <-grpcErr:
		shutdownHTTP()
		return errors.Join(handleGRPC(err), handleHTTP(<-httpErr))
	}
}

func (s *Server) closeBackend() {
	if s == nil || s.backend == nil {
		return
	}
	if err := s.backend.Close(); err != nil {
		log.Printf("close missions store: %v", err)
	}
}

// OpenBackend opens the configured storage backend, creating its directory.
func OpenBackend(cfg Config) (storage.Backend, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend)); backend {
	case "", BackendSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = filepath.Join("data", "missions.db")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := missionssqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open missions sqlite store: %w", err)
		}
		return store, nil
	case BackendBadger:
		dir := strings.TrimSpace(cfg.BadgerDir)
		if dir == "" {
			dir = filepath.Join("data", "missions-badger")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		store, err := missionsbadger.Open(missionsbadger.Options{Dir: dir})
		if err != nil {
			return nil, fmt.Errorf("open missions badger store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewGenerator builds the configured mission generator.
func NewGenerator(cfg generator.Config) (lifecycle.Generator, error) {
	provider, err := generator.ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	if provider == generator.ProviderStatic {
		log.Printf("using static mission generator")
		return generator.Static{}, nil
	}
	cfg.Provider = provider
	client, err := generator.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure %s generator: %w", provider, err)
	}
	log.Printf("using %s mission generator with model %s", provider, client.Model())
	return client, nil
}

func importRoster(ctx context.Context, dst storage.StudentRoster, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	emails, err := roster.Load(path)
	if err != nil {
		return err
	}
	n, err := roster.Import(ctx, dst, emails)
	if err != nil {
		return err
	}
	log.Printf("imported %d students from %s", n, path)
	return nil
}
