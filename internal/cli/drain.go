package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/saludcampo/offlinesync/internal/config"
	apperrors "github.com/saludcampo/offlinesync/internal/errors"
)

// drainOutput is the JSON shape of the drain command.
type drainOutput struct {
	Synchronized int `json:"synchronized"`
	Remaining    int `json:"remaining"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Synchronize queued writes now",
		Long: `Runs one pass over the queued writes, trying each once against the remote store.
Failed writes stay queued for the next pass. Every attempt is recorded in the
sync metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			f := newFormatter(rootOpts, cmd)
			if !a.monitor.IsOnline() && !force {
				return WrapExitError(ExitFailure, "remote store is unreachable; writes stay queued",
					apperrors.New(apperrors.ErrRemoteUnreachable, "offline"))
			}

			synced, err := a.service.Drain(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("drain stopped after %d write(s)", synced), err)
			}
			remaining, err := a.service.CountPending(ctx)
			if err != nil {
				return err
			}
			f.VerboseLog("Drained against %s", config.MaskDSN(a.cfg.Remote.DSN))
			return f.Success(drainOutput{Synchronized: synced, Remaining: remaining}, func(w io.Writer) {
				fmt.Fprintf(w, "Synchronized %d write(s), %d still pending\n", synced, remaining)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drain even if the remote store did not answer a ping")
	return cmd
}
