package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"epkfarm/native/farm"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendLevelDB, cfg.Storage.Backend)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `GenesisFile = "genesis.yaml"

[storage]
Backend = "memory"

[farm]
StakeToken = "uni-v2"
RewardToken = "EPK"
ZeroStakePolicy = "forfeit"
Paused = true

[clock]
StartHeight = 500
BlockIntervalMs = 250

[gateway]
ListenAddress = "0.0.0.0:9000"

[gateway.auth]
Enabled = true
HMACSecret = "0123456789abcdef0123456789abcdef"
Issuer = "epk-auth"

[[gateway.rateLimits]]
ID = "reads"
RequestsPerMinute = 600
Burst = 50
Paths = ["/v1/farm/pool"]

[observability]
ServiceName = "farmd-test"

[observability.logging]
Format = "text"

[index]
Enabled = true
Driver = "postgres"
DSN = "postgres://farm@localhost/farm"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "genesis.yaml", cfg.GenesisFile)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, uint64(500), cfg.Clock.StartHeight)
	require.Equal(t, 250*time.Millisecond, cfg.BlockInterval())
	require.Equal(t, "0.0.0.0:9000", cfg.Gateway.ListenAddress)
	require.True(t, cfg.Gateway.Auth.Enabled)
	require.Len(t, cfg.Gateway.RateLimits, 1)
	require.Equal(t, "reads", cfg.Gateway.RateLimits[0].ID)
	require.Equal(t, "text", cfg.LoggingConfig().Format)
	require.Equal(t, "farmd-test", cfg.TelemetryConfig().ServiceName)
	require.Equal(t, IndexDriverPostgres, cfg.Index.Driver)

	node, err := cfg.NodeConfig()
	require.NoError(t, err)
	require.Equal(t, farm.ZeroStakeForfeit, node.ZeroStakePolicy)
	require.True(t, node.Pauses.IsPaused("farm"))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[farm]\nStakeTokn = \"LP\"\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "farm.StakeTokn")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":       func(c *Config) { c.Storage.Backend = "rocks" },
		"leveldb path":  func(c *Config) { c.Storage.Path = "" },
		"same tokens":   func(c *Config) { c.Farm.RewardToken = "lp" },
		"missing token": func(c *Config) { c.Farm.StakeToken = " " },
		"policy":        func(c *Config) { c.Farm.ZeroStakePolicy = "burn" },
		"clock":         func(c *Config) { c.Clock.BlockIntervalMs = 1 },
		"gateway":       func(c *Config) { c.Gateway.ListenAddress = "nope" },
		"service":       func(c *Config) { c.Observability.ServiceName = "" },
		"metrics addr":  func(c *Config) { c.Observability.MetricsAddress = "9090" },
		"log format":    func(c *Config) { c.Observability.Logging.Format = "xml" },
		"sample ratio":  func(c *Config) { c.Observability.Telemetry.SampleRatio = 2 },
		"index driver":  func(c *Config) { c.Index.Driver = "mysql" },
		"index dsn":     func(c *Config) { c.Index.DSN = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Index.Enabled = false
	cfg.Index.Driver = ""
	require.NoError(t, cfg.Validate())
}
