package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"assistant-router/internal/provider"
	"assistant-router/internal/router"
	"assistant-router/internal/server"
)

const serveUsage = `Usage:
  assistant-router serve --config <path> [--port <port>]

Flags:
  --config string   Path to YAML configuration file (required)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("serve command requires --config <path>")
	}

	cfg, closer, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	rt := router.New(provider.NewHTTPClient())

	srv, err := server.New(cfg, rt, nil)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
