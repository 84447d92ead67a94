// Package keygen generates holder RSA-PSS key pairs for local development.
package keygen

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/tekiplanet/vortexid/internal/services/identity/crypto"
)

// Config holds configuration for key pair generation.
type Config struct {
	Format string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Format: "env"}
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format: env or raw")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a key pair and writes it to out.
func Run(cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}

	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	switch cfg.Format {
	case "env":
		if _, err := fmt.Fprintf(out, "VORTEX_ID_PUBLIC_KEY=%s\n", pair.PublicKey); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "VORTEX_ID_PRIVATE_KEY=%s\n", pair.PrivateKey)
		return err
	case "raw":
		if _, err := fmt.Fprintln(out, pair.PublicKey); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, pair.PrivateKey)
		return err
	default:
		return fmt.Errorf("unknown format %q", cfg.Format)
	}
}
