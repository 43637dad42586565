package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Audio    AudioConfig   `yaml:"audio"`
	Metrics  MetricsConfig `yaml:"metrics"`

	path string
}

type AudioConfig struct {
	PreferredHostAPI string   `yaml:"preferred_host_api"` // "Core Audio", "ALSA", "Windows WASAPI", ...
	InputDevice      string   `yaml:"input_device"`
	OutputDevice     string   `yaml:"output_device"`
	FramesPerBlock   int      `yaml:"frames_per_block"`
	ChannelCapacity  int      `yaml:"channel_capacity"`
	MeterGain        float32  `yaml:"meter_gain"`
	OpenTimeout      Duration `yaml:"open_timeout"`
	Autostart        bool     `yaml:"autostart"` // reopen the remembered pair on launch
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Duration is written to YAML as "2s" rather than as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			FramesPerBlock:  512,
			ChannelCapacity: 4,
			MeterGain:       0.1,
			OpenTimeout:     Duration(2 * time.Second),
			Autostart:       true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// Load reads the config from the platform config dir or returns defaults
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile overlays the YAML file at path onto the defaults. A missing file
// is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the audio pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Audio.FramesPerBlock <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_block must be positive, got %d", c.Audio.FramesPerBlock))
	}
	if c.Audio.ChannelCapacity <= 0 {
		errs = append(errs, fmt.Errorf("audio.channel_capacity must be positive, got %d", c.Audio.ChannelCapacity))
	}
	if c.Audio.MeterGain <= 0 {
		errs = append(errs, fmt.Errorf("audio.meter_gain must be positive, got %v", c.Audio.MeterGain))
	}
	if c.Audio.OpenTimeout < 0 {
		errs = append(errs, fmt.Errorf("audio.open_timeout must not be negative, got %v", c.Audio.OpenTimeout.Std()))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config is loaded from and saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "scan-converter", "config.yaml")
}
