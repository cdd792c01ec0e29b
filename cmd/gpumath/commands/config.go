package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/problem"
)

// Config holds the demo settings. Values come from flags, GPUMATH_*
// environment variables and an optional gpumath.yaml, in that order of
// precedence.
type Config struct {
	Population   int           `mapstructure:"population"`
	VectorLength int           `mapstructure:"vector_length"`
	Direction    string        `mapstructure:"direction"`
	CPUShare     float64       `mapstructure:"cpu_share"`
	Seed         uint64        `mapstructure:"seed"`
	Workers      int           `mapstructure:"workers"`
	LogLevel     string        `mapstructure:"log_level"`
	Adapter      string        `mapstructure:"adapter"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Population:   1024,
		VectorLength: 8,
		Direction:    "minimize",
		CPUShare:     0.25,
		Seed:         1,
		LogLevel:     "warn",
		Adapter:      "hardware",
		PollTimeout:  device.DefaultPollTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("population", d.Population)
	v.SetDefault("vector_length", d.VectorLength)
	v.SetDefault("direction", d.Direction)
	v.SetDefault("cpu_share", d.CPUShare)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("adapter", d.Adapter)
	v.SetDefault("poll_timeout", d.PollTimeout)
}

// configure points v at its sources. An empty file searches for
// gpumath.yaml in the working directory and in ~/.gpumath.
func configure(v *viper.Viper, file string) {
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".gpumath"))
		}
		v.SetConfigName("gpumath")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("GPUMATH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v's sources and validates it.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Population <= 0 {
		return fmt.Errorf("population must be positive, got %d", c.Population)
	}
	if c.VectorLength <= 0 {
		return fmt.Errorf("vector_length must be positive, got %d", c.VectorLength)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.CPUShare < 0 || c.CPUShare > 1 {
		return fmt.Errorf("cpu_share must be between 0 and 1, got %g", c.CPUShare)
	}
	if _, err := c.OptimizationDirection(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.AdapterPreference(); err != nil {
		return err
	}
	return nil
}

// OptimizationDirection parses Direction.
func (c Config) OptimizationDirection() (problem.OptimizationDirection, error) {
	return problem.ParseDirection(c.Direction)
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// AdapterPreference parses Adapter.
func (c Config) AdapterPreference() (device.AdapterPreference, error) {
	switch strings.ToLower(c.Adapter) {
	case "hardware":
		return device.PreferHardware, nil
	case "first":
		return device.PreferFirst, nil
	default:
		return 0, fmt.Errorf("adapter must be hardware or first, got %q", c.Adapter)
	}
}

// DeviceOptions returns the device options for a validated config.
func (c Config) DeviceOptions() []device.Option {
	pref, _ := c.AdapterPreference()
	return []device.Option{
		device.WithAdapterPreference(pref),
		device.WithPollTimeout(c.PollTimeout),
		device.WithLabel("gpumath-cli"),
	}
}
