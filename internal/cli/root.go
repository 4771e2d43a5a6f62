// Package cli implements the catalogd command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/konfigurator/catalogstore/internal/config"
	"github.com/konfigurator/catalogstore/internal/server"
	"github.com/konfigurator/catalogstore/pkg/logger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "yaml"

	// open builds the runtime for a command; tests replace it.
	open func(ctx context.Context) (*server.Runtime, error)
	out  io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"json", "yaml"}

// NewRootCommand creates the root command for catalogd.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{open: openFromEnv, out: os.Stdout})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "catalogd",
		Short:         "Versioned article catalog store",
		Long:          "Stores named configurator catalogs with an immutable snapshot history and a latest view.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	cmd.SetOut(opts.out)
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newArticlesCommand(opts))
	cmd.AddCommand(newVersionsCommand(opts))
	cmd.AddCommand(newLookupCommand(opts))
	cmd.AddCommand(newSourcesCommand(opts))
	return cmd
}

func openFromEnv(ctx context.Context) (*server.Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	return server.Open(ctx, cfg)
}

// withRuntime opens the store for the duration of fn.
func (o *RootOptions) withRuntime(ctx context.Context, fn func(rt *server.Runtime) error) error {
	rt, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}()
	return fn(rt)
}
