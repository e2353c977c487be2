package config

// Storage selects the state backend. The memory backend loses all state on
// restart and is meant for tests and throwaway devnets.
type Storage struct {
	Backend string `toml:"Backend"`
	Path    string `toml:"Path"`
}

type Farm struct {
	StakeToken      string `toml:"StakeToken"`
	RewardToken     string `toml:"RewardToken"`
	ZeroStakePolicy string `toml:"ZeroStakePolicy"`
	Paused          bool   `toml:"Paused"`
}

// Clock drives block height on a devnet. StartHeight is only used when the
// node has no persisted height.
type Clock struct {
	StartHeight     uint64 `toml:"StartHeight"`
	BlockIntervalMs int64  `toml:"BlockIntervalMs"`
}

type Logging struct {
	Level      string `toml:"Level"`
	Format     string `toml:"Format"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type Observability struct {
	ServiceName    string    `toml:"ServiceName"`
	Environment    string    `toml:"Environment"`
	MetricsAddress string    `toml:"MetricsAddress"`
	Logging        Logging   `toml:"logging"`
	Telemetry      Telemetry `toml:"telemetry"`
}

// Index configures the event history store behind GET /v1/farm/events.
type Index struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}
