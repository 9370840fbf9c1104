package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"finsync/internal/domain/realtime"
	"finsync/internal/domain/transaction"
	"finsync/internal/infrastructure/postgres/listener"
	"finsync/internal/shared/config"
	"finsync/internal/shared/logger"
	"finsync/internal/shared/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "finsync: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
			SampleRatio:  cfg.Telemetry.SampleRatio,
		}, log)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	authenticate(ctx, deps, cfg, log)
	wire(deps, log)

	deps.Monitor.Start(ctx)
	if deps.CacheListener != nil {
		deps.CacheListener.Start(ctx)
	}
	if deps.Scheduler != nil {
		deps.Scheduler.Start()
	}
	deps.Channel.SubscribeToTransactions()

	var srv *http.Server
	if cfg.Status.Enabled {
		srv = StartServer(cfg.Status.Addr, SetupRoutes(deps, cfg, log), log)
	}

	<-ctx.Done()
	GracefulShutdown(srv, deps, log, 30*time.Second)
	return nil
}

// authenticate logs in with configured credentials when no token was given
func authenticate(ctx context.Context, deps *Dependencies, cfg *config.Config, log zerolog.Logger) {
	if deps.Credentials.Token() == "" && cfg.Auth.Username != "" {
		token, err := deps.Client.Login(ctx, cfg.Auth.Username, cfg.Auth.Password)
		if err != nil {
			log.Error().Err(err).Msg("Login failed, continuing without a token")
			return
		}
		deps.Credentials.Set(token)
		log.Info().Str("token", logger.TokenPrefix(token)).Msg("Logged in")
	}

	if exp, err := deps.Credentials.Expiry(); err == nil {
		if deps.Credentials.Expired(time.Now()) {
			log.Warn().Time("expired_at", exp).Msg("Access token has expired")
		} else {
			log.Info().Time("expires_at", exp).Msg("Access token loaded")
		}
	}
}

// wire connects the components' notifications to each other
func wire(deps *Dependencies, log zerolog.Logger) {
	deps.Channel.Initialize(deps.Credentials)

	deps.Channel.AddStateListener(func(s realtime.State) {
		log.Info().Str("state", string(s)).Msg("Realtime state changed")
	})
	deps.Channel.AddTransactionsListener(func(txs []transaction.Transaction) {
		log.Info().Int("count", len(txs)).Msg("Transactions pushed")
	})

	deps.Monitor.Subscribe(func(online bool) {
		deps.Channel.HandleConnectivity(online)
		if online && deps.Scheduler != nil {
			deps.Scheduler.Trigger()
		}
	})

	if deps.CacheListener != nil {
		deps.CacheListener.Subscribe(func(c listener.Change) {
			log.Debug().Str("cache_key", c.Key).Int64("version", c.Version).Msg("Shared cache entry updated")
		})
	}
}
