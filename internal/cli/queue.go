package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/models"
)

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <collection> <json-payload>",
		Short: "Queue a write for later synchronization",
		Long:  "Stores the write in the local queue without contacting the remote store.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayloadArg(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			item, err := a.service.EnqueueWrite(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd).Success(item, func(w io.Writer) {
				fmt.Fprintf(w, "Queued write %d for %s\n", item.ID, item.Collection)
			})
		},
	}
}

// writeOutput is the JSON shape of the write command.
type writeOutput struct {
	Queued  bool                 `json:"queued"`
	Pending *models.PendingWrite `json:"pending,omitempty"`
	Cause   string               `json:"cause,omitempty"`
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write <collection> <json-payload>",
		Short: "Write a record, queueing it if the remote store is unavailable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayloadArg(args[1])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.Write(cmd.Context(), args[0], payload)
			if err != nil {
				return err
			}
			out := writeOutput{Queued: res.Queued, Pending: res.Pending}
			if res.Err != nil {
				out.Cause = res.Err.Error()
			}
			return newFormatter(rootOpts, cmd).Success(out, func(w io.Writer) {
				switch {
				case !res.Queued:
					fmt.Fprintf(w, "Saved to %s\n", args[0])
				case res.Err != nil:
					fmt.Fprintf(w, "Saved offline as write %d (remote write failed: %v)\n", res.Pending.ID, res.Err)
				default:
					fmt.Fprintf(w, "Saved offline as write %d\n", res.Pending.ID)
				}
			})
		},
	}
}

// pendingOutput is the JSON shape of the pending command.
type pendingOutput struct {
	Count  int                    `json:"count"`
	Writes []*models.PendingWrite `json:"writes"`
	Stats  map[string]int         `json:"stats"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List queued writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list := a.service.ListPending
			if failed {
				list = a.service.ListFailed
			}
			items, err := list(cmd.Context())
			if err != nil {
				return err
			}
			if items == nil {
				items = []*models.PendingWrite{}
			}
			stats, err := a.service.QueueStats(cmd.Context())
			if err != nil {
				return err
			}
			out := pendingOutput{Count: len(items), Writes: items, Stats: stats}
			return newFormatter(rootOpts, cmd).Success(out, func(w io.Writer) {
				printPending(w, items, failed)
				if stats["total"] > 0 {
					fmt.Fprintf(w, "Queue: %d total, %d pending, %d failed\n",
						stats["total"], stats["pending"], stats["failed"])
				}
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "list writes that reached the attempt ceiling instead")
	return cmd
}

func printPending(w io.Writer, items []*models.PendingWrite, failed bool) {
	label := "pending"
	if failed {
		label = "failed"
	}
	if len(items) == 0 {
		fmt.Fprintf(w, "No %s writes\n", label)
		return
	}
	fmt.Fprintf(w, "%d %s write(s)\n", len(items), label)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLLECTION\tATTEMPTS\tENQUEUED\tLAST ERROR")
	for _, item := range items {
		lastErr := item.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			item.ID, item.Collection, item.AttemptCount, item.EnqueuedAt.UTC().Format(time.RFC3339), lastErr)
	}
	tw.Flush()
}

// NewClearQueueCommand creates the clear-queue command.
func NewClearQueueCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear-queue",
		Short: "Discard every queued write",
		Long:  "Deletes every queued write, pending or failed. Writes that were never synchronized are lost.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "refusing to discard queued writes without --yes")
			}
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.ClearQueue(cmd.Context()); err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd).Success(map[string]bool{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Queue cleared")
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the irreversible deletion")
	return cmd
}

// NewRequeueFailedCommand creates the requeue-failed command.
func NewRequeueFailedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-failed",
		Short: "Move failed writes back to the pending queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.service.RequeueFailed(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(rootOpts, cmd).Success(map[string]int{"requeued": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Requeued %d write(s)\n", n)
			})
		},
	}
}

func parsePayloadArg(raw string) (models.Payload, error) {
	payload, err := models.ParsePayload(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid payload", err)
	}
	return payload, nil
}
