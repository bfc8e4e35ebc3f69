package cli

import (
	"context"
	"strings"
	"time"

	"github.com/saludcampo/offlinesync/internal/config"
	apperrors "github.com/saludcampo/offlinesync/internal/errors"
	"github.com/saludcampo/offlinesync/internal/logging"
	"github.com/saludcampo/offlinesync/internal/models"
	"github.com/saludcampo/offlinesync/internal/remote"
	syncpkg "github.com/saludcampo/offlinesync/internal/sync"
	"github.com/saludcampo/offlinesync/internal/sync/connectivity"
	"github.com/saludcampo/offlinesync/internal/sync/metrics"
	"github.com/saludcampo/offlinesync/internal/sync/queue"
	"github.com/saludcampo/offlinesync/internal/telemetry"
)

// Remote is the remote store as the CLI uses it.
type Remote interface {
	syncpkg.RemoteStore
	Ping(ctx context.Context) error
}

// RemoteFactory opens the remote store. The returned function releases it.
type RemoteFactory func(ctx context.Context, cfg config.RemoteConfig) (Remote, func(), error)

func connectPostgres(ctx context.Context, cfg config.RemoteConfig) (Remote, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, apperrors.New(apperrors.ErrConfig, "remote.dsn is not configured")
	}
	store, err := remote.Connect(ctx, cfg.DSN, cfg.ConnectTimeout)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// offlineRemote stands in for the remote store in commands that only touch
// local data.
type offlineRemote struct{}

func (offlineRemote) Insert(context.Context, string, models.Payload) error {
	return apperrors.New(apperrors.ErrRemoteUnreachable, "remote store not opened")
}

func (offlineRemote) Ping(context.Context) error {
	return apperrors.New(apperrors.ErrRemoteUnreachable, "remote store not opened")
}

// app holds everything a command needs, opened from the configuration.
type app struct {
	cfg     config.Config
	queue   *queue.SyncQueue
	metrics *metrics.Store
	remote  Remote
	monitor *connectivity.Monitor
	service *syncpkg.Service

	closers []func()
}

// openApp opens the local stores and telemetry. With withRemote it also
// connects to the remote store and checks it once to seed the connectivity
// state; otherwise the app starts offline.
func openApp(ctx context.Context, opts *RootOptions, withRemote bool) (*app, error) {
	cfg := opts.Config
	a := &app{cfg: cfg}

	providers, shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "initialise telemetry", err)
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logging.Warn("Telemetry shutdown failed", map[string]interface{}{"cause": err.Error()})
		}
	})
	instruments, err := telemetry.NewInstruments(providers.MeterProvider)
	if err != nil {
		a.Close()
		return nil, apperrors.Wrap(apperrors.ErrInternal, "create instruments", err)
	}

	a.queue, err = queue.Open(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { a.queue.Close() })

	a.metrics, err = metrics.Open(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { a.metrics.Close() })

	online := false
	a.remote = offlineRemote{}
	if withRemote {
		r, release, err := opts.ConnectRemote(ctx, cfg.Remote)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.remote = r
		a.closers = append(a.closers, release)

		if err := r.Ping(ctx); err != nil {
			logging.Warn("Remote store unreachable, starting offline", map[string]interface{}{"cause": err.Error()})
		} else {
			online = true
		}
	}

	a.monitor = connectivity.NewMonitor(online,
		connectivity.WithChecker(connectivity.CheckFunc(a.remote.Ping)),
		connectivity.WithCheckInterval(cfg.Connectivity.CheckInterval),
		connectivity.WithMaxCheckBackoff(cfg.Connectivity.MaxCheckBackoff),
	)
	syncOpts := []syncpkg.Option{
		syncpkg.WithMaxAttempts(cfg.Queue.MaxAttempts),
		syncpkg.WithInstruments(instruments),
	}
	if cfg.Audit.Enabled {
		syncOpts = append(syncOpts,
			syncpkg.WithAuditor(syncpkg.NewAuditor(a.remote, a.queue, cfg.Audit.Actor, instruments)))
	}
	a.service = syncpkg.NewService(a.queue, a.metrics, a.remote, a.monitor, syncOpts...)
	return a, nil
}

// Close releases everything in reverse opening order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] != nil {
			a.closers[i]()
		}
	}
	a.closers = nil
}
