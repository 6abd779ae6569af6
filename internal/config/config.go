package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LedgerBloxberg = "bloxberg"
	LedgerCoblo    = "coblo"

	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Ledgers             []string
	Store               string
	PgDSN               string
	SQLitePath          string
	BloxbergRPC         string
	BloxbergContract    string
	BloxbergBlockWindow uint64
	CobloRPC            string
	CobloUser           string
	CobloPassword       string
	CobloStream         string
	CobloBatchSize      uint64
	PollInterval        time.Duration
	ReconnectDelay      time.Duration
	RPCRate             float64
	MaxRetries          int
	RetryBackoff        time.Duration
	Rejects             string
	MetricsAddr         string
	LogLevel            string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OBSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("ledgers", []string{LedgerBloxberg, LedgerCoblo})
	v.SetDefault("store", StorePostgres)
	v.SetDefault("sqlite-path", "./data/observer.db")
	v.SetDefault("bloxberg-rpc", "wss://websockets.bloxberg.org")
	v.SetDefault("bloxberg-contract", "0x4945d63B509e137b0293Bd958cf97B61996c0fB9")
	v.SetDefault("bloxberg-block-window", uint64(5000))
	v.SetDefault("coblo-rpc", "http://t2.coblo.net:9718")
	v.SetDefault("coblo-user", "public")
	v.SetDefault("coblo-password", "public")
	v.SetDefault("coblo-stream", "iscc")
	v.SetDefault("coblo-batch-size", uint64(100))
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("reconnect-delay", 5*time.Second)
	v.SetDefault("rpc-rate", float64(10))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Ledgers:             getStringSlice(v, "ledgers"),
		Store:               strings.ToLower(v.GetString("store")),
		PgDSN:               v.GetString("pg-dsn"),
		SQLitePath:          v.GetString("sqlite-path"),
		BloxbergRPC:         v.GetString("bloxberg-rpc"),
		BloxbergContract:    v.GetString("bloxberg-contract"),
		BloxbergBlockWindow: v.GetUint64("bloxberg-block-window"),
		CobloRPC:            v.GetString("coblo-rpc"),
		CobloUser:           v.GetString("coblo-user"),
		CobloPassword:       v.GetString("coblo-password"),
		CobloStream:         v.GetString("coblo-stream"),
		CobloBatchSize:      v.GetUint64("coblo-batch-size"),
		PollInterval:        v.GetDuration("poll-interval"),
		ReconnectDelay:      v.GetDuration("reconnect-delay"),
		RPCRate:             v.GetFloat64("rpc-rate"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		Rejects:             v.GetString("rejects"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	if len(c.Ledgers) == 0 {
		return fmt.Errorf("at least one ledger is required")
	}
	for _, ledger := range c.Ledgers {
		switch ledger {
		case LedgerBloxberg:
			if c.BloxbergRPC == "" {
				return fmt.Errorf("bloxberg rpc url is required")
			}
			if c.BloxbergBlockWindow == 0 {
				return fmt.Errorf("bloxberg block window must be greater than zero")
			}
		case LedgerCoblo:
			if c.CobloRPC == "" {
				return fmt.Errorf("coblo rpc url is required")
			}
			if c.CobloBatchSize == 0 {
				return fmt.Errorf("coblo batch size must be greater than zero")
			}
		default:
			return fmt.Errorf("unknown ledger: %s", ledger)
		}
	}

	switch c.Store {
	case StorePostgres:
		if c.PgDSN == "" {
			return fmt.Errorf("pg dsn is required")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store: %s", c.Store)
	}
	return nil
}

// Enabled reports whether ledger is configured to be observed.
func (c Config) Enabled(ledger string) bool {
	for _, item := range c.Ledgers {
		if item == ledger {
			return true
		}
	}
	return false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
