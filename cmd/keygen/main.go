package main

import (
	"flag"
	"os"

	"github.com/tekiplanet/vortexid/internal/platform/config"
	"github.com/tekiplanet/vortexid/internal/tools/keygen"
)

func main() {
	cfg, err := keygen.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := keygen.Run(cfg, os.Stdout); err != nil {
		config.Exitf("generate key pair: %v", err)
	}
}
