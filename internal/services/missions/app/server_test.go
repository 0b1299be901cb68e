package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chaosarchitect/missions/internal/services/missions/generator"
)

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Errorf("serve: %v", serveErr)
			}
		case <-time.After(10 * time.Second):
			t.Error("timeout waiting for server shutdown")
		}
	})
	return srv
}

func testConfig(t *testing.T, backend string) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		HTTPAddr:     "127.0.0.1:0",
		GRPCAddr:     "127.0.0.1:0",
		StoreBackend: backend,
		DBPath:       filepath.Join(dir, "db", "missions.db"),
		BadgerDir:    filepath.Join(dir, "badger"),
		RosterPath:   writeRoster(t, "students:\n  - emails: [agent@example.com]\n"),
		Generator:    generator.Config{Provider: generator.ProviderStatic},
		Version:      "test",
	}
}

func postMission(t *testing.T, srv *Server, path, email string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post("http://"+srv.HTTPAddr()+path, "application/json", strings.NewReader(`{"email":"`+email+`"}`))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestServerServesMissionLifecycle(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			srv := startServer(t, testConfig(t, backend))

			status, body := postMission(t, srv, "/mission", "agent@example.com")
			if status != http.StatusOK || body["isNew"] != true {
				t.Fatalf("first request = %d %v", status, body)
			}
			status, body = postMission(t, srv, "/api/mission", "agent@example.com")
			if status != http.StatusOK || body["isNew"] != false {
				t.Fatalf("second request = %d %v", status, body)
			}
			status, _ = postMission(t, srv, "/mission/reject", "agent@example.com")
			if status != http.StatusOK {
				t.Fatalf("reject = %d", status)
			}
			status, body = postMission(t, srv, "/mission", "agent@example.com")
			if status != http.StatusForbidden || body["error"] != "Banned" {
				t.Fatalf("banned request = %d %v", status, body)
			}
			status, body = postMission(t, srv, "/mission", "stranger@example.com")
			if status != http.StatusForbidden || body["error"] != "Unauthorized" {
				t.Fatalf("unregistered request = %d %v", status, body)
			}
		})
	}
}

func TestServerExposesMetricsAndHealth(t *testing.T) {
	srv := startServer(t, testConfig(t, BackendSQLite))
	postMission(t, srv, "/mission", "agent@example.com")

	resp, err := http.Get("http://" + srv.HTTPAddr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(raw), "missions_issued_total 1") {
		t.Fatalf("metrics missing issued counter:\n%s", raw)
	}

	conn, err := grpc.NewClient(srv.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: healthServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if health.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, want SERVING", health.GetStatus())
	}
}

func TestNewFailsOnBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown backend", mutate: func(cfg *Config) { cfg.StoreBackend = "postgres" }},
		{name: "missing roster", mutate: func(cfg *Config) { cfg.RosterPath = filepath.Join(t.TempDir(), "missing.yaml") }},
		{name: "remote generator without key", mutate: func(cfg *Config) { cfg.Generator = generator.Config{Provider: generator.ProviderGroq} }},
		{name: "unknown generator", mutate: func(cfg *Config) { cfg.Generator = generator.Config{Provider: "oracle"} }},
		{name: "bad http addr", mutate: func(cfg *Config) { cfg.HTTPAddr = "256.0.0.1:bad" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t, BackendSQLite)
			tc.mutate(&cfg)
			if _, err := New(context.Background(), cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewGeneratorSelectsProvider(t *testing.T) {
	gen, err := NewGenerator(generator.Config{Provider: generator.ProviderStatic})
	if err != nil {
		t.Fatalf("static generator: %v", err)
	}
	if _, ok := gen.(generator.Static); !ok {
		t.Fatalf("generator = %T, want generator.Static", gen)
	}

	gen, err = NewGenerator(generator.Config{Provider: generator.ProviderGemini, APIKey: "k"})
	if err != nil {
		t.Fatalf("gemini generator: %v", err)
	}
	client, ok := gen.(*generator.Client)
	if !ok {
		t.Fatalf("generator = %T, want *generator.Client", gen)
	}
	if client.Model() != "gemini-1.5-flash" {
		t.Fatalf("model = %q", client.Model())
	}
}

func TestServeNilServer(t *testing.T) {
	var srv *Server
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("expected nil server error")
	}
	if srv.HTTPAddr() != "" || srv.GRPCAddr() != "" {
		t.Fatal("expected empty addresses for nil server")
	}
}
