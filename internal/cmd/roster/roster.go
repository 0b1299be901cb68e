// Package roster parses roster command flags and manages the student
// directory.
package roster

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	entrypoint "github.com/chaosarchitect/missions/internal/platform/cmd"
	server "github.com/chaosarchitect/missions/internal/services/missions/app"
	missionroster "github.com/chaosarchitect/missions/internal/services/missions/roster"
)

// Roster subcommands.
const (
	CommandImport = "import"
	CommandList   = "list"
)

// Config holds roster command configuration.
type Config struct {
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DBPath       string `env:"DB_PATH" envDefault:"data/missions.db"`
	BadgerDir    string `env:"BADGER_DIR" envDefault:"data/missions-badger"`

	Command string
	File    string
}

// ParseConfig parses environment, flags and the subcommand into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "Storage backend (sqlite or badger)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.BadgerDir, "badger-dir", cfg.BadgerDir, "Badger data directory")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, errors.New("usage: roster [flags] import <file.yaml> | list")
	}
	cfg.Command = strings.ToLower(rest[0])
	switch cfg.Command {
	case CommandImport:
		if len(rest) != 2 {
			return Config{}, errors.New("usage: roster import <file.yaml>")
		}
		cfg.File = rest[1]
	case CommandList:
		if len(rest) != 1 {
			return Config{}, errors.New("usage: roster list")
		}
	default:
		return Config{}, fmt.Errorf("unknown roster command %q", rest[0])
	}
	return cfg, nil
}

// Run executes the configured roster command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	backend, err := server.OpenBackend(server.Config{
		StoreBackend: cfg.StoreBackend,
		DBPath:       cfg.DBPath,
		BadgerDir:    cfg.BadgerDir,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	switch cfg.Command {
	case CommandImport:
		emails, err := missionroster.Load(cfg.File)
		if err != nil {
			return err
		}
		n, err := missionroster.Import(ctx, backend, emails)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "imported %d students from %s\n", n, cfg.File)
		return err
	case CommandList:
		emails, err := backend.ListStudents(ctx)
		if err != nil {
			return err
		}
		for _, email := range emails {
			if _, err := fmt.Fprintln(out, email); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown roster command %q", cfg.Command)
	}
}
