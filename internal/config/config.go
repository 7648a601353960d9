package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
)

// Transport kinds accepted in channel entries.
var channelKinds = []string{"memory", "unix"}

// ChannelConfig provisions one logical channel name.
type ChannelConfig struct {
	Name       string `toml:"name"`
	Kind       string `toml:"kind"`
	Address    string `toml:"address"`
	MaxMsgSize int    `toml:"max_msg_size"`
}

// DialConfig controls how an output side waits for its listener.
type DialConfig struct {
	ConnectTimeout    time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	BackoffJitter     bool
}

// RegistryConfig is the on-disk channel registry.
type RegistryConfig struct {
	Channels []ChannelConfig
	Dial     DialConfig
}

type dialFile struct {
	ConnectTimeout string  `toml:"connect_timeout"`
	BackoffInitial string  `toml:"backoff_initial"`
	BackoffMax     string  `toml:"backoff_max"`
	Multiplier     float64 `toml:"backoff_multiplier"`
	Jitter         bool    `toml:"backoff_jitter"`
}

type registryFile struct {
	Channels []ChannelConfig `toml:"channels"`
	Dial     dialFile        `toml:"dial"`
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		ConnectTimeout:    5 * time.Second,
		BackoffInitial:    25 * time.Millisecond,
		BackoffMax:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		BackoffJitter:     true,
	}
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{Dial: DefaultDialConfig()}
}

// LoadRegistryConfig reads a registry file and overlays it on defaults.
func LoadRegistryConfig(path string) (RegistryConfig, error) {
	cfg := DefaultRegistryConfig()

	var raw registryFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return RegistryConfig{}, fmt.Errorf("load registry config (%s): %w", path, err)
	}
	cfg.Channels = raw.Channels
	for i := range cfg.Channels {
		cfg.Channels[i].Name = strings.TrimSpace(cfg.Channels[i].Name)
		cfg.Channels[i].Kind = strings.ToLower(strings.TrimSpace(cfg.Channels[i].Kind))
		cfg.Channels[i].Address = strings.TrimSpace(cfg.Channels[i].Address)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dial.connect_timeout", raw.Dial.ConnectTimeout, &cfg.Dial.ConnectTimeout},
		{"dial.backoff_initial", raw.Dial.BackoffInitial, &cfg.Dial.BackoffInitial},
		{"dial.backoff_max", raw.Dial.BackoffMax, &cfg.Dial.BackoffMax},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return RegistryConfig{}, fmt.Errorf("registry config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("dial", "backoff_multiplier") {
		cfg.Dial.BackoffMultiplier = raw.Dial.Multiplier
	}
	if meta.IsDefined("dial", "backoff_jitter") {
		cfg.Dial.BackoffJitter = raw.Dial.Jitter
	}

	if err := ValidateRegistryConfig(cfg); err != nil {
		return RegistryConfig{}, err
	}
	return cfg, nil
}

func ValidateRegistryConfig(cfg RegistryConfig) error {
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if err := ValidateChannelEntry(ch); err != nil {
			return fmt.Errorf("channels[%d] invalid: %w", i, err)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channels[%d] invalid: duplicate name %q", i, ch.Name)
		}
		seen[ch.Name] = true
	}
	if cfg.Dial.ConnectTimeout < 0 {
		return fmt.Errorf("dial connect_timeout must be >= 0")
	}
	if cfg.Dial.BackoffMultiplier != 0 && cfg.Dial.BackoffMultiplier < 1 {
		return fmt.Errorf("dial backoff_multiplier must be >= 1")
	}
	return nil
}

func ValidateChannelEntry(cfg ChannelConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !lo.Contains(channelKinds, cfg.Kind) {
		return fmt.Errorf("kind must be one of %s, got %q", strings.Join(channelKinds, "|"), cfg.Kind)
	}
	if cfg.Address == "" {
		return fmt.Errorf("address is required")
	}
	if cfg.MaxMsgSize < 0 {
		return fmt.Errorf("max_msg_size must be >= 0")
	}
	return nil
}

// ServerConfig drives the typechanctl echo server.
type ServerConfig struct {
	Name          string
	RegistryPath  string
	RequestFormat string
	ReplyFormat   string
	MetricsAddr   string
}

type serverFile struct {
	Name          string `toml:"name"`
	Registry      string `toml:"registry"`
	RequestFormat string `toml:"request_format"`
	ReplyFormat   string `toml:"reply_format"`
	MetricsAddr   string `toml:"metrics_addr"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:          "echo",
		RequestFormat: "%d",
		ReplyFormat:   "%d",
		MetricsAddr:   ":9464",
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config (%s): %w", path, err)
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("registry") {
		cfg.RegistryPath = strings.TrimSpace(raw.Registry)
	}
	if meta.IsDefined("request_format") {
		cfg.RequestFormat = raw.RequestFormat
	}
	if meta.IsDefined("reply_format") {
		cfg.ReplyFormat = raw.ReplyFormat
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("server config missing name")
	}
	if cfg.RequestFormat == "" || cfg.ReplyFormat == "" {
		return fmt.Errorf("server config requires request_format and reply_format")
	}
	return nil
}
