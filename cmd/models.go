package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"assistant-router/internal/router"
)

const modelsUsage = `Usage:
  assistant-router models [--config <path>]

Flags:
  --config string   Path to YAML configuration file`

func listModels(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("models", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, modelsUsage)
	}
	cfgPath := fs.String("config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse models flags: %w", err)
	}

	cfg, closer, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	catalog, err := router.BuildCatalog(cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFAMILY\tIMAGES\tREASONING")
	for _, e := range catalog.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", e.ID, e.DisplayName, e.Family, e.ImageCapable, e.IsReasoningModel)
	}
	return tw.Flush()
}
