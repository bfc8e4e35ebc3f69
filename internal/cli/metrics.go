package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/sync/metrics"
)

// NewMetricsCommand creates the metrics command group.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect the synchronization attempt log",
	}

	cmd.AddCommand(newMetricsSummaryCommand(rootOpts))
	cmd.AddCommand(newMetricsAttemptsCommand(rootOpts))
	cmd.AddCommand(newMetricsExportCommand(rootOpts))
	cmd.AddCommand(newMetricsClearCommand(rootOpts))
	return cmd
}

func newMetricsSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize recorded synchronization attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.service.Summarize(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd).Success(summary, func(w io.Writer) {
				printSummary(w, summary)
			})
		},
	}
}

func printSummary(w io.Writer, s metrics.Summary) {
	fmt.Fprintf(w, "Total attempts:             %d\n", s.TotalAttempts)
	fmt.Fprintf(w, "Successful on 1st attempt:  %d\n", s.SuccessfulFirstAttempt)
	fmt.Fprintf(w, "Successful on 2nd attempt:  %d\n", s.SuccessfulSecondAttempt)
	fmt.Fprintf(w, "Failed attempts:            %d\n", s.FailedSyncs)
	fmt.Fprintf(w, "Success rate:               %.2f%%\n", s.OverallSuccessRate)
	fmt.Fprintf(w, "Average sync time:          %.3fs\n", s.AverageSyncTimeSeconds)
}

// attemptsOutput is the JSON shape of the metrics attempts command.
type attemptsOutput struct {
	WriteID  int64                 `json:"write_id,omitempty"`
	Pending  *models.PendingWrite  `json:"pending,omitempty"`
	Attempts []*models.SyncAttempt `json:"attempts"`
}

func newMetricsAttemptsCommand(rootOpts *RootOptions) *cobra.Command {
	var writeID int64

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List recorded synchronization attempts",
		Long: `Lists every recorded attempt, oldest first. With --write-id only the attempts
for that queued write are listed, together with its current queue state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("write-id") && writeID <= 0 {
				return NewExitError(ExitCommandError, "--write-id must be a positive queue id")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := attemptsOutput{WriteID: writeID}
			if writeID > 0 {
				out.Attempts, err = a.service.AttemptsForWrite(ctx, writeID)
				if err != nil {
					return err
				}
				out.Pending, err = a.service.PendingWrite(ctx, writeID)
				if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
					return err
				}
			} else {
				out.Attempts, err = a.service.Attempts(ctx)
				if err != nil {
					return err
				}
			}
			if out.Attempts == nil {
				out.Attempts = []*models.SyncAttempt{}
			}
			return newFormatter(rootOpts, cmd).Success(out, func(w io.Writer) {
				printAttempts(w, out)
			})
		},
	}

	cmd.Flags().Int64Var(&writeID, "write-id", 0, "only show attempts for this queued write")
	return cmd
}

func printAttempts(w io.Writer, out attemptsOutput) {
	if out.WriteID > 0 {
		switch {
		case out.Pending != nil:
			fmt.Fprintf(w, "Write %d is %s in %s after %d attempt(s)\n",
				out.WriteID, out.Pending.Status, out.Pending.Collection, out.Pending.AttemptCount)
		case len(out.Attempts) > 0:
			fmt.Fprintf(w, "Write %d is no longer queued\n", out.WriteID)
		}
	}
	if len(out.Attempts) == 0 {
		fmt.Fprintln(w, "No synchronization attempts recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWRITE\tTIMESTAMP\tCOLLECTION\tATTEMPT\tRESULT\tDURATION\tERROR")
	for _, rec := range out.Attempts {
		result := "ok"
		errMsg := "-"
		if !rec.Success {
			result = "failed"
			errMsg = rec.ErrorMessage
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.ID, rec.PendingWriteID, rec.Timestamp.UTC().Format(time.RFC3339), rec.Collection,
			rec.AttemptNumber, result, rec.Duration(), errMsg)
	}
	tw.Flush()
}

func newMetricsExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded synchronization attempts as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			csv, err := a.service.ExportCSV(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), csv)
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return apperrors.Wrap(apperrors.ErrLocalStorage, "create export directory", err)
			}
			if err := os.WriteFile(out, []byte(csv), 0644); err != nil {
				return apperrors.Wrap(apperrors.ErrLocalStorage, "write export", err)
			}
			return newFormatter(rootOpts, cmd).Success(map[string]string{"path": out}, func(w io.Writer) {
				fmt.Fprintf(w, "Exported sync metrics to %s\n", out)
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the CSV to this file instead of stdout")
	return cmd
}

func newMetricsClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded synchronization attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to delete sync metrics without --yes")
			}
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.ClearMetrics(cmd.Context()); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd).Success(map[string]bool{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Sync metrics cleared")
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the irreversible deletion")
	return cmd
}
