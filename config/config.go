package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "MERKLEDROP_"

type Config struct {
	Environment     string           `toml:"Environment"`
	DataDir         string           `toml:"DataDir"`
	Governor        string           `toml:"Governor"`
	ClaimableToken  string           `toml:"ClaimableToken"`
	SuperAdmin      string           `toml:"SuperAdmin"`
	Admins          []string         `toml:"Admins"`
	TrancheLifespan time.Duration    `toml:"TrancheLifespan"`
	Genesis         []GenesisBalance `toml:"genesis"`

	RPC       RPC       `toml:"rpc"`
	Indexer   Indexer   `toml:"indexer"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}

// GenesisBalance seeds a token balance the first time the ledger starts.
type GenesisBalance struct {
	Token  string `toml:"Token"`
	Owner  string `toml:"Owner"`
	Amount string `toml:"Amount"`
}

type RPC struct {
	Address           string        `toml:"Address"`
	RequestsPerMinute float64       `toml:"RequestsPerMinute"`
	Burst             int           `toml:"Burst"`
	EnvelopeTTL       time.Duration `toml:"EnvelopeTTL"`
}

type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// overrides mirrors the subset of Config operators commonly set per
// deployment. Unset variables leave the file value untouched.
type overrides struct {
	Environment       string         `env:"ENV"`
	DataDir           string         `env:"DATA_DIR"`
	Governor          string         `env:"GOVERNOR"`
	ClaimableToken    string         `env:"CLAIMABLE_TOKEN"`
	SuperAdmin        string         `env:"SUPER_ADMIN"`
	Admins            []string       `env:"ADMINS" envSeparator:","`
	TrancheLifespan   *time.Duration `env:"TRANCHE_LIFESPAN"`
	RPCAddress        string         `env:"RPC_ADDRESS"`
	RequestsPerMinute *float64       `env:"RPC_REQUESTS_PER_MINUTE"`
	IndexerEnabled    *bool          `env:"INDEXER_ENABLED"`
	IndexerDriver     string         `env:"INDEXER_DRIVER"`
	IndexerDSN        string         `env:"INDEXER_DSN"`
	LogLevel          string         `env:"LOG_LEVEL"`
	LogFile           string         `env:"LOG_FILE"`
	OTelEndpoint      string         `env:"OTEL_ENDPOINT"`
	OTelTraces        *bool          `env:"OTEL_TRACES"`
	OTelMetrics       *bool          `env:"OTEL_METRICS"`
}

// Load reads the configuration at path, writing a default file first when none
// exists, then applies MERKLEDROP_* environment overrides.
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		cfg = Default()
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Admins == nil {
		cfg.Admins = []string{}
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		Environment:     "local",
		DataDir:         "./merkledrop-data",
		Admins:          []string{},
		TrancheLifespan: 0,
		RPC: RPC{
			Address:           ":8545",
			RequestsPerMinute: 600,
			Burst:             60,
			EnvelopeTTL:       15 * time.Minute,
		},
		Indexer: Indexer{
			Enabled: true,
			Driver:  "sqlite",
			DSN:     "file:merkledrop-events.db?cache=shared",
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

func applyEnv(cfg *Config) error {
	var ov overrides
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	setString(&cfg.Environment, ov.Environment)
	setString(&cfg.DataDir, ov.DataDir)
	setString(&cfg.Governor, ov.Governor)
	setString(&cfg.ClaimableToken, ov.ClaimableToken)
	setString(&cfg.SuperAdmin, ov.SuperAdmin)
	if len(ov.Admins) > 0 {
		cfg.Admins = ov.Admins
	}
	if ov.TrancheLifespan != nil {
		cfg.TrancheLifespan = *ov.TrancheLifespan
	}
	setString(&cfg.RPC.Address, ov.RPCAddress)
	if ov.RequestsPerMinute != nil {
		cfg.RPC.RequestsPerMinute = *ov.RequestsPerMinute
	}
	if ov.IndexerEnabled != nil {
		cfg.Indexer.Enabled = *ov.IndexerEnabled
	}
	setString(&cfg.Indexer.Driver, ov.IndexerDriver)
	setString(&cfg.Indexer.DSN, ov.IndexerDSN)
	setString(&cfg.Logging.Level, ov.LogLevel)
	setString(&cfg.Logging.File, ov.LogFile)
	setString(&cfg.Telemetry.Endpoint, ov.OTelEndpoint)
	if ov.OTelTraces != nil {
		cfg.Telemetry.Traces = *ov.OTelTraces
	}
	if ov.OTelMetrics != nil {
		cfg.Telemetry.Metrics = *ov.OTelMetrics
	}
	return nil
}

func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
