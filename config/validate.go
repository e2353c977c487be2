package config

import (
	"fmt"
	"net"
	"strings"

	"epkfarm/native/farm"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"

	IndexDriverSQLite   = "sqlite"
	IndexDriverPostgres = "postgres"
)

// MinBlockIntervalMs keeps a misconfigured devnet clock from spinning.
var MinBlockIntervalMs = int64(10)

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Backend)) {
	case BackendMemory:
	case BackendLevelDB:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage: Path required for the leveldb backend")
		}
	default:
		return fmt.Errorf("storage: unsupported backend %q", c.Storage.Backend)
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))

	stake := strings.ToUpper(strings.TrimSpace(c.Farm.StakeToken))
	reward := strings.ToUpper(strings.TrimSpace(c.Farm.RewardToken))
	if stake == "" || reward == "" {
		return fmt.Errorf("farm: StakeToken and RewardToken must be set")
	}
	if stake == reward {
		return fmt.Errorf("farm: StakeToken and RewardToken must differ")
	}
	if _, err := farm.ParseZeroStakePolicy(c.Farm.ZeroStakePolicy); err != nil {
		return fmt.Errorf("farm: %w", err)
	}

	if c.Clock.BlockIntervalMs < MinBlockIntervalMs {
		return fmt.Errorf("clock: BlockIntervalMs must be >= %d", MinBlockIntervalMs)
	}

	if err := c.Gateway.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Observability.ServiceName) == "" {
		return fmt.Errorf("observability: ServiceName must be set")
	}
	if addr := strings.TrimSpace(c.Observability.MetricsAddress); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("observability.MetricsAddress: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Observability.Logging.Format)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("observability.logging: unsupported format %q", c.Observability.Logging.Format)
	}
	if r := c.Observability.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("observability.telemetry: SampleRatio must be within [0, 1]")
	}

	if c.Index.Enabled {
		switch strings.ToLower(strings.TrimSpace(c.Index.Driver)) {
		case IndexDriverSQLite, IndexDriverPostgres:
		default:
			return fmt.Errorf("index: unsupported driver %q", c.Index.Driver)
		}
		if strings.TrimSpace(c.Index.DSN) == "" {
			return fmt.Errorf("index: DSN must be set when enabled")
		}
	}
	return nil
}
