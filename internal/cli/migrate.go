package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saludcampo/offlinesync/internal/config"
	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/remote"
)

// NewMigrateRemoteCommand creates the migrate-remote command.
func NewMigrateRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-remote",
		Short: "Create the dashboard tables on the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := rootOpts.Config.Remote.DSN
			if strings.TrimSpace(dsn) == "" {
				return apperrors.New(apperrors.ErrConfig, "remote.dsn is not configured")
			}
			f := newFormatter(rootOpts, cmd)
			f.VerboseLog("Applying migrations to %s", config.MaskDSN(dsn))

			if err := remote.MigrateUp(cmd.Context(), dsn); err != nil {
				return err
			}
			return f.Success(map[string]bool{"migrated": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Remote schema is up to date")
			})
		},
	}
}
