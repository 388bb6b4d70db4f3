package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, AutoPort, cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, uint32(1024), cfg.Sampling.Rate)
	assert.Equal(t, 1024, cfg.Sampling.WindowLength)
	assert.Equal(t, uint32(10000), cfg.Sampling.RateCeiling)
	assert.Equal(t, 5*time.Second, cfg.Sampling.Deadline)
	assert.Equal(t, 1.65, cfg.Sampling.Midpoint)
	assert.Equal(t, 3.3, cfg.Sampling.FullScale)
	assert.Equal(t, 50*time.Microsecond, cfg.Sampling.ZeroCrossPoll)
	assert.Equal(t, 2*time.Second, cfg.Sampling.CyclePause)
	assert.Equal(t, 512, cfg.Link.ChunkSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Link.ChunkPause)
	assert.Equal(t, 200*time.Millisecond, cfg.Host.PollInterval)
	assert.Equal(t, time.Minute, cfg.Host.TrendWindow)
	assert.Len(t, cfg.Mock.Harmonics, 1)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, AutoPort, cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
  baud_rate: 921600

sampling:
  rate: 2048
  window_length: 2048
  deadline: 3s
  cycle_pause: 500ms

link:
  chunk_size: 256

host:
  poll_interval: 100ms

mock:
  frequency: 60
  harmonics:
    - order: 3
      ratio: 0.1
    - order: 5
      ratio: 0.05

log:
  level: debug
  development: true
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 921600, cfg.Serial.BaudRate)
	assert.Equal(t, uint32(2048), cfg.Sampling.Rate)
	assert.Equal(t, 2048, cfg.Sampling.WindowLength)
	assert.Equal(t, 3*time.Second, cfg.Sampling.Deadline)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.CyclePause)
	assert.Equal(t, 256, cfg.Link.ChunkSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Host.PollInterval)
	assert.Equal(t, 60.0, cfg.Mock.Frequency)
	assert.Equal(t, []HarmonicConfig{{Order: 3, Ratio: 0.1}, {Order: 5, Ratio: 0.05}}, cfg.Mock.Harmonics)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyACM0"
sampling:
  rate: 4096
  window_length: 0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, uint32(4096), cfg.Sampling.Rate)
	assert.Equal(t, 1024, cfg.Sampling.WindowLength)      // default
	assert.Equal(t, 115200, cfg.Serial.BaudRate)          // default
	assert.Equal(t, 8192, cfg.Link.MaxSamples)            // default
	assert.Equal(t, 5*time.Second, cfg.Sampling.Deadline) // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Sampling.Rate = 512

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, uint32(512), loaded.Sampling.Rate)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"rate below minimum", func(c *Config) { c.Sampling.Rate = 5 }},
		{"rate above ceiling", func(c *Config) { c.Sampling.Rate = 12000 }},
		{"ceiling above request limit", func(c *Config) { c.Sampling.RateCeiling = 30000 }},
		{"window too short", func(c *Config) { c.Sampling.WindowLength = 2 }},
		{"window too long", func(c *Config) { c.Sampling.WindowLength = 70000 }},
		{"zero full scale", func(c *Config) { c.Sampling.FullScale = 0 }},
		{"midpoint above full scale", func(c *Config) { c.Sampling.Midpoint = 4 }},
		{"zero chunk size", func(c *Config) { c.Link.ChunkSize = 0 }},
		{"max samples below window", func(c *Config) { c.Link.MaxSamples = 512 }},
		{"mock fundamental as harmonic", func(c *Config) { c.Mock.Harmonics = []HarmonicConfig{{Order: 1}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
