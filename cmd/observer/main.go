package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "observer",
		Short:        "ISCC-ID declaration observer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	observeCmd := &cobra.Command{
		Use:   "observe",
		Short: "Observe ledgers and register ISCC-IDs",
		RunE:  runObserve,
	}

	observeCmd.Flags().StringSlice("ledgers", []string{"bloxberg", "coblo"}, "ledgers to observe (comma-separated)")
	observeCmd.Flags().String("store", "postgres", "record store (postgres, sqlite, memory)")
	observeCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	observeCmd.Flags().String("sqlite-path", "./data/observer.db", "SQLite database path")
	observeCmd.Flags().String("bloxberg-rpc", "wss://websockets.bloxberg.org", "bloxberg RPC URL")
	observeCmd.Flags().String("bloxberg-contract", "0x4945d63B509e137b0293Bd958cf97B61996c0fB9", "ISCC registry contract address")
	observeCmd.Flags().Uint64("bloxberg-block-window", 5000, "blocks per log query")
	observeCmd.Flags().String("coblo-rpc", "http://t2.coblo.net:9718", "coblo MultiChain RPC URL")
	observeCmd.Flags().String("coblo-user", "public", "coblo RPC user")
	observeCmd.Flags().String("coblo-password", "public", "coblo RPC password")
	observeCmd.Flags().String("coblo-stream", "iscc", "coblo stream name")
	observeCmd.Flags().Uint64("coblo-batch-size", 100, "stream items per poll")
	observeCmd.Flags().Duration("poll-interval", 5*time.Second, "sleep between polls")
	observeCmd.Flags().Duration("reconnect-delay", 5*time.Second, "sleep between store reconnect attempts")
	observeCmd.Flags().Float64("rpc-rate", 10, "maximum ledger RPC calls per second, 0 disables pacing")
	observeCmd.Flags().Int("max-retries", 5, "maximum retry attempts per ledger call")
	observeCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	observeCmd.Flags().String("rejects", "", "optional JSONL path for rejected declarations")
	observeCmd.Flags().String("metrics-addr", "", "optional listen address for /metrics")
	observeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(observeCmd)

	mintCmd := &cobra.Command{
		Use:   "mint <iscc-code>",
		Short: "Compute the ISCC-ID of a code",
		Args:  cobra.ExactArgs(1),
		RunE:  runMint,
	}

	mintCmd.Flags().String("ledger", "bloxberg", "ledger whose header to use (bloxberg, coblo)")
	mintCmd.Flags().Uint64("counter", 0, "collision counter")

	root.AddCommand(mintCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <iscc-code>...",
		Short: "Validate ISCC codes and print their components",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runVerify,
	}

	root.AddCommand(verifyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
