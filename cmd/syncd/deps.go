package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"finsync/internal/domain/ledger"
	"finsync/internal/domain/offline"
	"finsync/internal/domain/realtime"
	"finsync/internal/infrastructure/cache"
	"finsync/internal/infrastructure/financeapi"
	"finsync/internal/infrastructure/netmon"
	"finsync/internal/infrastructure/postgres"
	"finsync/internal/infrastructure/postgres/listener"
	"finsync/internal/infrastructure/socketio"
	"finsync/internal/interfaces/scheduler"
	"finsync/internal/shared/auth"
	"finsync/internal/shared/config"
)

// Dependencies holds all initialized daemon components.
type Dependencies struct {
	Store       offline.Store
	Credentials *auth.Credentials
	Client      *financeapi.Client
	Monitor     *netmon.Monitor
	Engine      *offline.Engine
	Ledger      *ledger.Service
	Channel     *realtime.Channel

	// nil when disabled
	Scheduler     *scheduler.Scheduler
	CacheListener *listener.CacheListener

	closeStore func() error
}

// NewDependencies initializes all daemon dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	store, closeStore, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	creds := auth.NewCredentials(cfg.Auth.Token)
	client := financeapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, creds)

	probeAddr := cfg.Network.ProbeAddr
	if probeAddr == "" {
		if probeAddr, err = netmon.ProbeAddr(cfg.API.BaseURL); err != nil {
			closeStore()
			return nil, fmt.Errorf("derive probe address: %w", err)
		}
	}
	monitor := netmon.NewMonitor(netmon.TCPProbe(probeAddr), cfg.Network.ProbeInterval, cfg.Network.ProbeTimeout, logger)

	engine := offline.NewEngine(store, monitor, logger)
	svc := ledger.NewService(client, engine)

	channel := realtime.NewChannel(socketio.NewTransport(logger), store, realtime.Options{
		URL:  cfg.Realtime.URL,
		Path: cfg.Realtime.Path,
		Policy: realtime.Policy{
			MaxAttempts:       cfg.Realtime.MaxAttempts,
			ReconnectDelay:    cfg.Realtime.ReconnectDelay,
			BackoffMultiplier: cfg.Realtime.BackoffMultiplier,
			MaxDelay:          cfg.Realtime.MaxDelay,
			ConnectTimeout:    cfg.Realtime.ConnectTimeout,
		},
	}, logger)

	deps := &Dependencies{
		Store:       store,
		Credentials: creds,
		Client:      client,
		Monitor:     monitor,
		Engine:      engine,
		Ledger:      svc,
		Channel:     channel,
		closeStore:  closeStore,
	}

	if cfg.Refresh.Enabled {
		deps.Scheduler, err = scheduler.NewScheduler(scheduler.Config{
			Interval:     cfg.Refresh.Interval,
			WorkerCount:  cfg.Refresh.Workers,
			JobDelay:     cfg.Refresh.JobDelay,
			QueueSize:    cfg.Refresh.QueueSize,
			RunOnStartup: cfg.Refresh.RunOnStartup,
			JobProvider:  scheduler.RefreshJobs(svc),
		}, logger)
		if err != nil {
			closeStore()
			return nil, err
		}
	}

	if cfg.Cache.Driver == config.DriverPostgres {
		deps.CacheListener = listener.NewCacheListener(cfg.Cache.DSN, postgres.NotifyChannel, logger)
	}

	return deps, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.closeStore != nil {
		d.closeStore()
	}
}
