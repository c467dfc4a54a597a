// Package config holds the gtidring process configuration.
// Priority: defaults < config file < environment < flags.
package config

import (
	"os"
	"time"

	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/record"
)

// Error is the error class for configuration failures.
var Error = errs.Class("config")

// Config holds all gtidring configuration.
type Config struct {
	Buffer   BufferConfig   `yaml:"buffer"`
	Feeder   FeederConfig   `yaml:"feeder"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Arena    ArenaConfig    `yaml:"arena"`
	Simulate SimulateConfig `yaml:"simulate"`
	Log      LogConfig      `yaml:"log"`
}

// BufferConfig sizes the ring buffer.
type BufferConfig struct {
	Capacity int `yaml:"capacity"` // physical slots, capacity-1 usable
}

// FeederConfig controls the staging queue and the backpressure policy.
type FeederConfig struct {
	StagingCapacity uint64        `yaml:"staging_capacity"` // power of two
	Policy          string        `yaml:"policy"`           // drop | retry
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxRetries      int           `yaml:"max_retries"`
	IdleDelay       time.Duration `yaml:"idle_delay"`
}

// LedgerConfig controls bank validity tracking.
type LedgerConfig struct {
	HistoryDepth int `yaml:"history_depth"`
}

// ArenaConfig sizes the detector event pool.
type ArenaConfig struct {
	Size int `yaml:"size"` // power of two
}

// SimulateConfig drives the synthetic readout.
type SimulateConfig struct {
	Duration     time.Duration `yaml:"duration"`
	TriggerRate  float64       `yaml:"trigger_rate"` // Hz
	Jitter       int           `yaml:"jitter"`       // reorder window in GTIDs
	MaxHits      int           `yaml:"max_hits"`
	BankEvery    int           `yaml:"bank_every"` // triggers between banks
	RunID        uint32        `yaml:"run_id"`
	PollInterval time.Duration `yaml:"poll_interval"` // consumer idle wait
	StartGTID    uint64        `yaml:"start_gtid"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Buffer: BufferConfig{
			Capacity: gtidring.DefaultCapacity,
		},
		Feeder: FeederConfig{
			StagingCapacity: 4096,
			Policy:          "retry",
			RetryDelay:      200 * time.Microsecond,
			MaxRetries:      50,
			IdleDelay:       100 * time.Microsecond,
		},
		Ledger: LedgerConfig{
			HistoryDepth: record.DefaultHistoryDepth,
		},
		Arena: ArenaConfig{
			Size: 1024,
		},
		Simulate: SimulateConfig{
			Duration:     5 * time.Second,
			TriggerRate:  1000,
			Jitter:       8,
			MaxHits:      200,
			BankEvery:    500,
			RunID:        1,
			PollInterval: time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, Error.New("parsing %s: %v", path, err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, Error.Wrap(err)
}

// Policy returns the parsed backpressure policy.
func (c *Config) Policy() (gtidring.Policy, error) {
	return gtidring.ParsePolicy(c.Feeder.Policy)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var group errs.Group

	if c.Buffer.Capacity < 2 {
		group.Add(Error.New("buffer.capacity must be at least 2"))
	}
	if !powerOfTwo(c.Feeder.StagingCapacity) {
		group.Add(Error.New("feeder.staging_capacity must be a power of two"))
	}
	if _, err := c.Policy(); err != nil {
		group.Add(Error.Wrap(err))
	}
	if c.Feeder.RetryDelay <= 0 {
		group.Add(Error.New("feeder.retry_delay must be greater than 0"))
	}
	if c.Feeder.MaxRetries < 0 {
		group.Add(Error.New("feeder.max_retries must not be negative"))
	}
	if c.Ledger.HistoryDepth <= 0 {
		group.Add(Error.New("ledger.history_depth must be greater than 0"))
	}
	if c.Arena.Size <= 0 || !powerOfTwo(uint64(c.Arena.Size)) {
		group.Add(Error.New("arena.size must be a power of two"))
	}
	if c.Simulate.TriggerRate <= 0 {
		group.Add(Error.New("simulate.trigger_rate must be greater than 0"))
	}
	if c.Simulate.Jitter < 0 {
		group.Add(Error.New("simulate.jitter must not be negative"))
	}
	if c.Simulate.Jitter >= c.Buffer.Capacity-1 {
		group.Add(Error.New("simulate.jitter must be smaller than the usable buffer capacity"))
	}
	if c.Simulate.MaxHits < 0 || c.Simulate.MaxHits > record.MaxHits {
		group.Add(Error.New("simulate.max_hits must be within [0, %d]", record.MaxHits))
	}
	if c.Simulate.PollInterval <= 0 {
		group.Add(Error.New("simulate.poll_interval must be greater than 0"))
	}
	if c.Simulate.BankEvery <= 0 {
		group.Add(Error.New("simulate.bank_every must be greater than 0"))
	}

	return group.Err()
}

func powerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
