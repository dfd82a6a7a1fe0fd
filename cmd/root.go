package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"assistant-router/internal/config"
	"assistant-router/internal/logging"
)

const usage = `assistant-router routes assistant prompts to OpenAI, Anthropic, Gemini and Groq.

Usage:
  assistant-router <command> [flags]

Commands:
  serve    Start the HTTP server
  ask      Run one prompt against text read from stdin
  models   List the configured model catalog

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "ask":
		return ask(ctx, args[1:], os.Stdin, os.Stdout, os.Stderr)
	case "models":
		return listModels(args[1:], os.Stdout)
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

// loadConfig reads path, or falls back to defaults plus environment
// credentials when path is empty, then installs the configured logger.
func loadConfig(path string) (config.Config, io.Closer, error) {
	var (
		cfg config.Config
		err error
	)
	if path == "" {
		cfg, err = config.Parse(nil)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return config.Config{}, nil, err
	}

	closer, err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("initialise logging: %w", err)
	}
	return cfg, closer, nil
}
