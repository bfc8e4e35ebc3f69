package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/sync/scheduler"
)

// watchOutput is the JSON shape printed when watch exits.
type watchOutput struct {
	Online       bool   `json:"online"`
	SyncStatus   string `json:"sync_status"`
	PendingItems int    `json:"pending_items"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow connectivity and synchronize queued writes until interrupted",
		Long: `Checks the remote store, drains the queue whenever it becomes reachable and
retries pending writes periodically while online. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, rootOpts, cmd)
		},
	}
}

func runWatch(ctx context.Context, rootOpts *RootOptions, cmd *cobra.Command) error {
	a, err := openApp(ctx, rootOpts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.NewScheduler(a.service.Synchronizer(), a.queue, a.monitor,
		&scheduler.SchedulerConfig{QueueInterval: a.cfg.Scheduler.QueueInterval})
	sched.Start(ctx)

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := a.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Connectivity monitor stopped", err)
		}
	})

	logging.Info("Watching for connectivity changes", map[string]interface{}{
		"online": a.monitor.IsOnline(),
	})
	<-ctx.Done()

	sched.Stop()
	wg.Wait()
	a.service.Synchronizer().Wait()

	status, err := sched.GetStatus(context.Background())
	if err != nil {
		return err
	}
	out := watchOutput{
		Online:       status.IsOnline,
		SyncStatus:   string(status.SyncStatus),
		PendingItems: status.PendingItems,
	}
	return newFormatter(rootOpts, cmd).Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "Stopped with %d write(s) pending\n", out.PendingItems)
	})
}
