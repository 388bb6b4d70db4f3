package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AutoPort selects the first USB serial port found.
const AutoPort = "auto"

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Sampling SamplingConfig `yaml:"sampling"`
	Link     LinkConfig     `yaml:"link"`
	Host     HostConfig     `yaml:"host"`
	Mock     MockConfig     `yaml:"mock"`
	Log      LogConfig      `yaml:"log"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"` // Port name or "auto"
	BaudRate int    `yaml:"baud_rate"`
}

// SamplingConfig contains the device acquisition parameters.
type SamplingConfig struct {
	Rate          uint32        `yaml:"rate"`            // Initial sampling rate (Hz)
	WindowLength  int           `yaml:"window_length"`   // Samples per acquisition
	RateCeiling   uint32        `yaml:"rate_ceiling"`    // Highest applied rate (Hz)
	Deadline      time.Duration `yaml:"deadline"`        // Bound on one acquisition
	Midpoint      float64       `yaml:"midpoint"`        // Input DC bias (V)
	FullScale     float64       `yaml:"full_scale"`      // Quantization full scale (V)
	ZeroCrossPoll time.Duration `yaml:"zero_cross_poll"` // Read interval while waiting for a crossing
	CyclePause    time.Duration `yaml:"cycle_pause"`     // Pause between cycles
}

// LinkConfig contains framing parameters shared by both ends of the link.
type LinkConfig struct {
	ChunkSize  int           `yaml:"chunk_size"`  // Largest single write (bytes)
	ChunkPause time.Duration `yaml:"chunk_pause"` // Pause between chunks
	MaxSamples int           `yaml:"max_samples"` // Largest sample count accepted by the host
}

// HostConfig contains host side consumer parameters.
type HostConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // Interval at which records are consumed
	ReadBuffer   int           `yaml:"read_buffer"`   // Serial read size (bytes)
	TrendWindow  time.Duration `yaml:"trend_window"`  // Span of the metric history kept for display
}

// HarmonicConfig is one synthetic harmonic of the mock signal.
type HarmonicConfig struct {
	Order int     `yaml:"order"`
	Ratio float64 `yaml:"ratio"` // Amplitude relative to the fundamental
}

// MockConfig contains the simulated input signal.
type MockConfig struct {
	Frequency float64          `yaml:"frequency"` // Fundamental (Hz)
	Amplitude float64          `yaml:"amplitude"` // Fundamental peak (V)
	Offset    float64          `yaml:"offset"`    // DC bias (V)
	Harmonics []HarmonicConfig `yaml:"harmonics"`
	Noise     float64          `yaml:"noise"` // Uniform noise peak (V)
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     AutoPort,
			BaudRate: 115200,
		},
		Sampling: SamplingConfig{
			Rate:          1024,
			WindowLength:  1024,
			RateCeiling:   10000,
			Deadline:      5 * time.Second,
			Midpoint:      1.65,
			FullScale:     3.3,
			ZeroCrossPoll: 50 * time.Microsecond,
			CyclePause:    2 * time.Second,
		},
		Link: LinkConfig{
			ChunkSize:  512,
			ChunkPause: 10 * time.Millisecond,
			MaxSamples: 8192,
		},
		Host: HostConfig{
			PollInterval: 200 * time.Millisecond,
			ReadBuffer:   4096,
			TrendWindow:  time.Minute,
		},
		Mock: MockConfig{
			Frequency: 50,
			Amplitude: 1.0,
			Offset:    1.65,
			Harmonics: []HarmonicConfig{
				{Order: 3, Ratio: 0.3},
			},
			Noise: 0.001,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the ranges the device and the host rely on.
func (c *Config) Validate() error {
	s := c.Sampling
	switch {
	case s.RateCeiling < 10 || s.RateCeiling > 20000:
		return fmt.Errorf("%w: rate ceiling %d Hz outside [10, 20000]", ErrInvalid, s.RateCeiling)
	case s.Rate < 10 || s.Rate > s.RateCeiling:
		return fmt.Errorf("%w: rate %d Hz outside [10, %d]", ErrInvalid, s.Rate, s.RateCeiling)
	case s.WindowLength < 4 || s.WindowLength > 65535:
		return fmt.Errorf("%w: window length %d outside [4, 65535]", ErrInvalid, s.WindowLength)
	case s.FullScale <= 0:
		return fmt.Errorf("%w: full scale must be positive", ErrInvalid)
	case s.Midpoint < 0 || s.Midpoint > s.FullScale:
		return fmt.Errorf("%w: midpoint %.3g V outside [0, %.3g]", ErrInvalid, s.Midpoint, s.FullScale)
	case c.Link.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalid)
	case c.Link.MaxSamples < s.WindowLength:
		return fmt.Errorf("%w: max samples %d below window length %d", ErrInvalid, c.Link.MaxSamples, s.WindowLength)
	}
	for _, h := range c.Mock.Harmonics {
		if h.Order < 2 {
			return fmt.Errorf("%w: mock harmonic order %d", ErrInvalid, h.Order)
		}
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampling.Rate == 0 {
		c.Sampling.Rate = def.Sampling.Rate
	}
	if c.Sampling.WindowLength == 0 {
		c.Sampling.WindowLength = def.Sampling.WindowLength
	}
	if c.Sampling.RateCeiling == 0 {
		c.Sampling.RateCeiling = def.Sampling.RateCeiling
	}
	if c.Sampling.Deadline == 0 {
		c.Sampling.Deadline = def.Sampling.Deadline
	}
	if c.Sampling.Midpoint == 0 {
		c.Sampling.Midpoint = def.Sampling.Midpoint
	}
	if c.Sampling.FullScale == 0 {
		c.Sampling.FullScale = def.Sampling.FullScale
	}
	if c.Sampling.ZeroCrossPoll == 0 {
		c.Sampling.ZeroCrossPoll = def.Sampling.ZeroCrossPoll
	}

	if c.Link.ChunkSize == 0 {
		c.Link.ChunkSize = def.Link.ChunkSize
	}
	if c.Link.ChunkPause == 0 {
		c.Link.ChunkPause = def.Link.ChunkPause
	}
	if c.Link.MaxSamples == 0 {
		c.Link.MaxSamples = def.Link.MaxSamples
	}

	if c.Host.PollInterval == 0 {
		c.Host.PollInterval = def.Host.PollInterval
	}
	if c.Host.ReadBuffer == 0 {
		c.Host.ReadBuffer = def.Host.ReadBuffer
	}
	if c.Host.TrendWindow == 0 {
		c.Host.TrendWindow = def.Host.TrendWindow
	}

	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
	if c.Mock.Offset == 0 {
		c.Mock.Offset = def.Mock.Offset
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
