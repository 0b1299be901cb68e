// Package main manages the student roster used to authorize missions.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	rostercmd "github.com/chaosarchitect/missions/internal/cmd/roster"
	"github.com/chaosarchitect/missions/internal/platform/config"
)

func main() {
	cfg, err := rostercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}
	log.SetPrefix("[ROSTER] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rostercmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
