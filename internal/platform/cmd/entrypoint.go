// Package cmd holds the startup plumbing shared by the mission service commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/chaosarchitect/missions/internal/platform/config"
	"github.com/chaosarchitect/missions/internal/platform/otel"
)

// ServiceMissions names the mission service in traces.
const ServiceMissions = "missions"

// telemetryFlushTimeout bounds how long pending spans may delay exit.
const telemetryFlushTimeout = 5 * time.Second

// ParseConfig fills cfg from CHAOS_ARCHITECT_ environment variables. Flags
// registered afterwards use the loaded values as their defaults.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs applies command-line overrides registered on fs.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag set is required")
	}
	return fs.Parse(args)
}

// RunWithTelemetry installs the tracer provider described by the
// CHAOS_ARCHITECT_OTEL_* variables, runs fn and flushes spans once fn returns.
func RunWithTelemetry(ctx context.Context, service string, fn func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case fn == nil:
		return errors.New("run function is required")
	}

	var telemetry otel.Config
	if err := config.ParseEnv(&telemetry); err != nil {
		return err
	}
	shutdown, err := otel.Setup(ctx, service, telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("%s: flush traces: %v", service, err)
		}
	}()
	return fn(ctx)
}
