package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"isccObserver/internal/chain"
	"isccObserver/internal/config"
	"isccObserver/internal/metrics"
	"isccObserver/internal/multichain"
	"isccObserver/internal/observer"
	"isccObserver/internal/storage"
	"isccObserver/internal/storage/memory"
	"isccObserver/internal/storage/postgres"
	"isccObserver/internal/storage/sqlite"
)

func runObserve(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	obsCfg := observer.Config{
		PollInterval:   cfg.PollInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
	}
	if cfg.Rejects != "" {
		obsCfg.Journal = storage.NewJsonlJournal(cfg.Rejects)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Enabled(config.LedgerBloxberg) {
		contract, err := chain.ParseAddress(cfg.BloxbergContract)
		if err != nil {
			return err
		}
		client, err := chain.NewClient(ctx, cfg.BloxbergRPC, cfg.RPCRate)
		if err != nil {
			return fmt.Errorf("connect bloxberg rpc: %w", err)
		}
		defer client.Close()

		source, err := observer.NewBloxbergSource(observer.BloxbergConfig{
			Contract:     contract,
			BlockWindow:  cfg.BloxbergBlockWindow,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, client, logger)
		if err != nil {
			return err
		}
		obs := observer.NewObserver(obsCfg, source, store, logger)
		g.Go(func() error { return obs.Run(ctx) })
	}

	if cfg.Enabled(config.LedgerCoblo) {
		client, err := multichain.NewClient(ctx, cfg.CobloRPC, cfg.CobloUser, cfg.CobloPassword, cfg.RPCRate)
		if err != nil {
			return fmt.Errorf("connect coblo rpc: %w", err)
		}
		defer client.Close()

		source, err := observer.NewCobloSource(observer.CobloConfig{
			Stream:       cfg.CobloStream,
			BatchSize:    cfg.CobloBatchSize,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		}, client, logger)
		if err != nil {
			return err
		}
		obs := observer.NewObserver(obsCfg, source, store, logger)
		g.Go(func() error { return obs.Run(ctx) })
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("observer start",
		zap.Strings("ledgers", cfg.Ledgers),
		zap.String("store", cfg.Store),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("rejects", cfg.Rejects),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoreMemory:
		return memory.NewStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store: %s", cfg.Store)
	}
}
