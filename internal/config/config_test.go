package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, gtidring.DefaultCapacity, cfg.Buffer.Capacity)

	p, err := cfg.Policy()
	require.NoError(t, err)
	require.Equal(t, gtidring.PolicyRetry, p)
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	path := filepath.Join(t.TempDir(), "gtidring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
buffer:
  capacity: 64
feeder:
  policy: drop
  retry_delay: 5ms
simulate:
  jitter: 4
`), 0644))

	cfg, err = config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 64, cfg.Buffer.Capacity)
	require.Equal(t, "drop", cfg.Feeder.Policy)
	require.Equal(t, 5*time.Millisecond, cfg.Feeder.RetryDelay)
	require.Equal(t, 4, cfg.Simulate.Jitter)
	// untouched keys keep their defaults
	require.Equal(t, config.Default().Feeder.StagingCapacity, cfg.Feeder.StagingCapacity)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.True(t, config.Error.Has(err), err)

	require.NoError(t, os.WriteFile(path, []byte("buffer: [nope"), 0644))
	_, err = config.Load(path)
	require.True(t, config.Error.Has(err), err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Simulate.RunID = 77

	data, err := cfg.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(data), "run_id: 77")

	path := filepath.Join(t.TempDir(), "gtidring.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))
	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Buffer.Capacity = 1
	cfg.Feeder.StagingCapacity = 1000
	cfg.Feeder.Policy = "block"
	cfg.Arena.Size = 3
	cfg.Simulate.MaxHits = 20000

	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{
		"buffer.capacity",
		"feeder.staging_capacity",
		"backpressure policy",
		"arena.size",
		"simulate.max_hits",
		"simulate.jitter",
	} {
		require.Contains(t, err.Error(), key)
	}
}
