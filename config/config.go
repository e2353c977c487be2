package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"epkfarm/core"
	gatewayconfig "epkfarm/gateway/config"
	nativecommon "epkfarm/native/common"
	"epkfarm/native/farm"
	"epkfarm/observability/logging"
	telemetry "epkfarm/observability/otel"
)

type Config struct {
	GenesisFile   string               `toml:"GenesisFile"`
	Storage       Storage              `toml:"storage"`
	Farm          Farm                 `toml:"farm"`
	Clock         Clock                `toml:"clock"`
	Gateway       gatewayconfig.Config `toml:"gateway"`
	Observability Observability        `toml:"observability"`
	Index         Index                `toml:"index"`
}

// Load loads the configuration from the given path, writing the devnet
// defaults there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a single-node devnet configuration.
func Default() *Config {
	return &Config{
		GenesisFile: "",
		Storage: Storage{
			Backend: BackendLevelDB,
			Path:    "./epkfarm-data",
		},
		Farm: Farm{
			StakeToken:      "LP",
			RewardToken:     "EPK",
			ZeroStakePolicy: string(farm.ZeroStakeCarryForward),
		},
		Clock: Clock{
			StartHeight:     0,
			BlockIntervalMs: 2000,
		},
		Gateway: gatewayconfig.Default(),
		Observability: Observability{
			ServiceName:    "epkfarm",
			Environment:    "dev",
			MetricsAddress: "127.0.0.1:9090",
			Logging: Logging{
				Level:  "info",
				Format: "json",
			},
			Telemetry: Telemetry{
				Endpoint:    "localhost:4318",
				Insecure:    true,
				SampleRatio: 1,
			},
		},
		Index: Index{
			Enabled: true,
			Driver:  IndexDriverSQLite,
			DSN:     "file:epkfarm-events.db",
		},
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

// NodeConfig translates the [farm] section into the core settings.
func (c *Config) NodeConfig() (core.Config, error) {
	policy, err := farm.ParseZeroStakePolicy(c.Farm.ZeroStakePolicy)
	if err != nil {
		return core.Config{}, err
	}
	return core.Config{
		StakeToken:      c.Farm.StakeToken,
		RewardToken:     c.Farm.RewardToken,
		ZeroStakePolicy: policy,
		Pauses:          nativecommon.StaticPauses{"farm": c.Farm.Paused},
	}, nil
}

func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.Clock.BlockIntervalMs) * time.Millisecond
}

func (c *Config) LoggingConfig() logging.Config {
	l := c.Observability.Logging
	return logging.Config{
		Service:    c.Observability.ServiceName,
		Env:        c.Observability.Environment,
		Level:      l.Level,
		Format:     l.Format,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

func (c *Config) TelemetryConfig() telemetry.Config {
	t := c.Observability.Telemetry
	return telemetry.Config{
		ServiceName: c.Observability.ServiceName,
		Environment: c.Observability.Environment,
		Endpoint:    t.Endpoint,
		Insecure:    t.Insecure,
		Headers:     telemetry.ParseHeaders(t.Headers),
		Metrics:     t.Metrics,
		Traces:      t.Traces,
		SampleRatio: t.SampleRatio,
	}
}
