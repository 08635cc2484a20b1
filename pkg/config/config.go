package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "DEBOT"

// Config is the root runtime configuration.
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Browser BrowserConfig `mapstructure:"browser"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `mapstructure:"format"`
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

// NetworkConfig selects the ledger endpoints handed to the execution engine.
type NetworkConfig struct {
	// Endpoint is a network name (main.ton.dev, net.ton.dev, localhost) or a URL.
	Endpoint string `mapstructure:"endpoint"`
	// Endpoints overrides the resolved endpoint list when non-empty.
	Endpoints []string `mapstructure:"endpoints"`
	// Workchain is applied to bot addresses given without a workchain prefix.
	Workchain int `mapstructure:"workchain"`
}

// BrowserConfig holds the defaults for user settings and interaction mode.
type BrowserConfig struct {
	Wallet      string `mapstructure:"wallet"`
	Pubkey      string `mapstructure:"pubkey"`
	KeysPath    string `mapstructure:"keys_path"`
	Interactive bool   `mapstructure:"interactive"`
}

// EngineConfig selects the execution engine implementation.
type EngineConfig struct {
	// Kind names the engine; only "sim" ships with this module.
	Kind string `mapstructure:"kind"`
	// SimBots points to the YAML file describing simulated bots.
	SimBots string `mapstructure:"sim_bots"`
}

// GatewayConfig configures HTTP gateway bind settings.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Default returns the configuration used when no file or env override is present.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Endpoint:  "http://127.0.0.1/",
			Workchain: 0,
		},
		Engine: EngineConfig{
			Kind: "sim",
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18791,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// SetDefaults registers every default value on v so that env overrides
// can bind to keys that are absent from the config file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("network.endpoint", defaults.Network.Endpoint)
	v.SetDefault("network.endpoints", defaults.Network.Endpoints)
	v.SetDefault("network.workchain", defaults.Network.Workchain)

	v.SetDefault("browser.wallet", defaults.Browser.Wallet)
	v.SetDefault("browser.pubkey", defaults.Browser.Pubkey)
	v.SetDefault("browser.keys_path", defaults.Browser.KeysPath)
	v.SetDefault("browser.interactive", defaults.Browser.Interactive)

	v.SetDefault("engine.kind", defaults.Engine.Kind)
	v.SetDefault("engine.sim_bots", defaults.Engine.SimBots)

	v.SetDefault("gateway.host", defaults.Gateway.Host)
	v.SetDefault("gateway.port", defaults.Gateway.Port)

	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.add_source", defaults.Logging.AddSource)
}

// Load reads configuration from path (or the default search locations when
// path is empty) and applies DEBOT_* environment overrides.
//
// A missing config file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path == "" {
		path = strings.TrimSpace(os.Getenv("DEBOT_CONFIG"))
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "debot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".debot"
	}
	return filepath.Join(home, ".config", "debot")
}

// ResolvedEndpoints returns the explicit endpoint list, or the expansion of
// the configured endpoint name.
func (c NetworkConfig) ResolvedEndpoints() []string {
	if len(c.Endpoints) > 0 {
		out := make([]string, len(c.Endpoints))
		copy(out, c.Endpoints)
		return out
	}

	return ResolveEndpoints(c.Endpoint)
}
