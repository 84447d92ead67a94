// Package identity parses identity command flags and starts the service.
package identity

import (
	"context"
	"flag"

	entrypoint "github.com/tekiplanet/vortexid/internal/platform/cmd"
	server "github.com/tekiplanet/vortexid/internal/services/identity/app"
)

// Config holds identity command configuration.
type Config struct {
	Port int `env:"VORTEX_ID_IDENTITY_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The identity HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the identity service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceIdentity, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
