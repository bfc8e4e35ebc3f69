// Package cli implements the offlinesync command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saludcampo/offlinesync/internal/config"
	"github.com/saludcampo/offlinesync/internal/logging"
)

// Version is reported by --version.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Config is loaded by the root command before any subcommand runs.
	Config config.Config

	// ConnectRemote opens the remote store. Tests replace it.
	ConnectRemote RemoteFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the offlinesync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{ConnectRemote: connectPostgres})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "offlinesync",
		Version:       Version,
		Short:         "Offline write queue for the field health dashboard",
		Long:          "Captures dashboard writes while disconnected and synchronizes them with the remote store, recording the outcome and latency of every attempt.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}
			opts.Config = cfg

			level := logging.ParseLevel(cfg.Logging.Level)
			if opts.Verbose {
				level = logging.LevelDebug
			}
			logging.Init(cmd.ErrOrStderr(), level)
			logging.Get().SetLevel(level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewWriteCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewClearQueueCommand(opts))
	cmd.AddCommand(NewRequeueFailedCommand(opts))
	cmd.AddCommand(NewDrainCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewMigrateRemoteCommand(opts))

	return cmd
}

// Execute runs the root command with ctx and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	opts := &RootOptions{Format: "text", ConnectRemote: connectPostgres}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		f := newFormatter(opts, cmd)
		if !isValidFormat(f.Format) {
			f.Format = "text"
		}
		f.Writer = cmd.ErrOrStderr()
		_ = f.Error(errorCode(err), err.Error(), nil)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
