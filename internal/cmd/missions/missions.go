// Package missions parses mission service flags and launches the service.
package missions

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/chaosarchitect/missions/internal/platform/cmd"
	server "github.com/chaosarchitect/missions/internal/services/missions/app"
	"github.com/chaosarchitect/missions/internal/services/missions/generator"
)

// Config holds mission command configuration. Variables carry the
// CHAOS_ARCHITECT_ prefix.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8095"`
	GRPCPort int    `env:"GRPC_PORT" envDefault:"8096"`
	Host     string `env:"HOST"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DBPath       string `env:"DB_PATH" envDefault:"data/missions.db"`
	BadgerDir    string `env:"BADGER_DIR" envDefault:"data/missions-badger"`
	RosterPath   string `env:"ROSTER_PATH"`

	GeneratorProvider string        `env:"GENERATOR_PROVIDER" envDefault:"groq"`
	GeneratorAPIKey   string        `env:"GENERATOR_API_KEY"`
	GeneratorBaseURL  string        `env:"GENERATOR_BASE_URL"`
	GeneratorModel    string        `env:"GENERATOR_MODEL"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"45s"`

	Version string `env:"VERSION" envDefault:"dev"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The missions HTTP server port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The missions gRPC health server port")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "Storage backend (sqlite or badger)")
	fs.StringVar(&cfg.RosterPath, "roster", cfg.RosterPath, "Student roster YAML imported at startup")
	fs.StringVar(&cfg.GeneratorProvider, "generator", cfg.GeneratorProvider, "Mission generator provider (groq, gemini, openai, static)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig maps command configuration to the runtime configuration.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		HTTPAddr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		GRPCAddr:     fmt.Sprintf("%s:%d", c.Host, c.GRPCPort),
		StoreBackend: c.StoreBackend,
		DBPath:       c.DBPath,
		BadgerDir:    c.BadgerDir,
		RosterPath:   c.RosterPath,
		Generator: generator.Config{
			Provider: generator.Provider(c.GeneratorProvider),
			APIKey:   c.GeneratorAPIKey,
			BaseURL:  c.GeneratorBaseURL,
			Model:    c.GeneratorModel,
		},
		GenerationTimeout: c.GenerationTimeout,
		Version:           c.Version,
	}
}

// Run starts the mission service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMissions, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}
