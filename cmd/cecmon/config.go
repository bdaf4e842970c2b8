//go:build linux

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/romshark/cecpoll/cec"
	"github.com/romshark/cecpoll/ratelimit"
)

type Config struct {
	Device struct {
		Path     string `yaml:"path"`
		PortID   int    `yaml:"port-id"`
		Follower string `yaml:"follower"` // Empty means "follower".
		SetMode  bool   `yaml:"set-mode"`
	} `yaml:"device"`

	Poll struct {
		Timeout        time.Duration `yaml:"timeout"`
		ThreadName     string        `yaml:"thread-name"`
		ThreadPriority int           `yaml:"thread-priority"`
	} `yaml:"poll"`

	// Settings are re-read on SIGHUP.
	Settings struct {
		Enabled       bool `yaml:"enabled"`
		SystemControl bool `yaml:"system-control"`
	} `yaml:"settings"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
		// ErrorsPerMinute bounds each error category.
		// 0 selects ratelimit.DefaultRates, -1 disables limiting.
		ErrorsPerMinute int `yaml:"errors-per-minute"`
	} `yaml:"log"`

	StatsInterval time.Duration `yaml:"stats-interval"` // 0 disables.
}

func defaultConfig() Config {
	var c Config
	c.Device.Path = "/dev/cec0"
	c.Device.PortID = cec.DefaultPortID
	c.Device.SetMode = true
	c.Poll.Timeout = cec.DefaultPollTimeout
	c.Poll.ThreadName = cec.DefaultThreadName
	c.Poll.ThreadPriority = cec.PriorityUrgentDisplay
	c.Settings.Enabled = true
	c.Settings.SystemControl = true
	c.Log.Level = "info"
	c.StatsInterval = 10 * time.Second
	return c
}

// loadConfig reads the YAML file named by -config (if it exists) and
// applies CLI overrides.
func loadConfig(args []string) (*Config, string, error) {
	fs := flag.NewFlagSet("cecmon", flag.ContinueOnError)
	fConfig := fs.String("config", "cecmon.yaml", "path to config YAML file")
	fDevice := fs.String("d", "", "cec device path")
	fPort := fs.Int("p", 0, "hdmi port id reported with hot plug events")
	fLevel := fs.String("log", "", "log level")
	fDisabled := fs.Bool("disabled", false, "start with event dispatch disabled")
	fStats := fs.Duration("stats", -1, "stats interval (0 disables)")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	conf, err := readConfigFile(*fConfig)
	if err != nil {
		return nil, "", err
	}

	// Apply CLI overrides if necessary.
	if *fDevice != "" {
		conf.Device.Path = *fDevice
	}
	if *fPort != 0 {
		conf.Device.PortID = *fPort
	}
	if *fLevel != "" {
		conf.Log.Level = *fLevel
	}
	if *fDisabled {
		conf.Settings.Enabled = false
	}
	if *fStats >= 0 {
		conf.StatsInterval = *fStats
	}

	if err := conf.validate(); err != nil {
		return nil, "", err
	}
	return conf, *fConfig, nil
}

// readConfigFile returns the defaults overlaid with the file at path.
// A missing file yields the defaults.
func readConfigFile(path string) (*Config, error) {
	conf := defaultConfig()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &conf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &conf, nil
}

func (c *Config) validate() error {
	if c.Device.Path == "" {
		return errors.New("device.path must be set (or use -d)")
	}
	if c.Device.PortID <= 0 {
		return errors.New("device.port-id must be > 0")
	}
	if _, ok := cec.ParseFollowerMode(c.Device.Follower); !ok {
		return fmt.Errorf("invalid device.follower %q", c.Device.Follower)
	}
	if c.Poll.Timeout < time.Millisecond {
		return errors.New("poll.timeout must be >= 1ms")
	}
	if c.Poll.ThreadPriority < -20 || c.Poll.ThreadPriority > 19 {
		return errors.New("poll.thread-priority must be between -20 and 19")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	if c.Log.ErrorsPerMinute < -1 {
		return errors.New("log.errors-per-minute must be >= -1")
	}
	if c.StatsInterval < 0 {
		return errors.New("stats-interval must be >= 0")
	}
	return nil
}

func (c *Config) settings() cec.Settings {
	return cec.Settings{
		Enabled:       c.Settings.Enabled,
		SystemControl: c.Settings.SystemControl,
	}
}

// logRates derives the error log limiter windows; nil disables limiting.
func (c *Config) logRates() map[time.Duration]int {
	n := c.Log.ErrorsPerMinute
	switch n {
	case 0:
		return ratelimit.DefaultRates
	case -1:
		return nil
	}
	return map[time.Duration]int{time.Minute: n}
}
