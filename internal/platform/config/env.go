package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable the commands read, so struct tags
// name only the suffix.
const EnvPrefix = "CHAOS_ARCHITECT_"

// ParseEnv loads target from EnvPrefix-scoped environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
