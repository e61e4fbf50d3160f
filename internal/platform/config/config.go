package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "UVFLEET"
	configFileName = "config.yaml"
)

// Config is the runtime configuration of the fleet controller.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Simulator SimulatorConfig `mapstructure:"simulator" yaml:"simulator"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
}

type TransportConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	PluginBinary   string        `mapstructure:"plugin_binary" yaml:"plugin_binary"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

type SimulatorConfig struct {
	Seed               int64   `mapstructure:"seed" yaml:"seed"`
	ConnectFailureRate float64 `mapstructure:"connect_failure_rate" yaml:"connect_failure_rate"`
	CommandFailureRate float64 `mapstructure:"command_failure_rate" yaml:"command_failure_rate"`
	DiscoveryRate      float64 `mapstructure:"discovery_rate" yaml:"discovery_rate"`
}

type SessionConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

type ScheduleConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	PromotionTimeout time.Duration `mapstructure:"promotion_timeout" yaml:"promotion_timeout"`
}

type MonitorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// SocketPath is where the daemon serves JSON-RPC.
func (c Config) SocketPath() string {
	return filepath.Join(c.DataDir, "uvfleet.sock")
}

// DBPath is the storage file for the configured driver.
func (c Config) DBPath() string {
	if c.Storage.Driver == "bolt" {
		return filepath.Join(c.DataDir, "uvfleet.bolt")
	}
	return filepath.Join(c.DataDir, "uvfleet.db")
}

// DefaultDataDir resolves ~/.uvfleet.
func DefaultDataDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".uvfleet"), nil
}

// Load reads <dataDir>/config.yaml (optional), .env (optional) and
// UVFLEET_* environment overrides. An empty dataDir means the default.
func Load(dataDir string) (Config, error) {
	_ = godotenv.Load()

	if dataDir == "" {
		if env := os.Getenv(EnvPrefix + "_DATA_DIR"); env != "" {
			dataDir = env
		} else {
			resolved, err := DefaultDataDir()
			if err != nil {
				return Config{}, err
			}
			dataDir = resolved
		}
	}
	expanded, err := homedir.Expand(dataDir)
	if err != nil {
		return Config{}, fmt.Errorf("expand data dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(expanded)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expanded
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) Config {
	v := viper.New()
	setDefaults(v)
	cfg := Config{}
	_ = v.Unmarshal(&cfg)
	cfg.DataDir = dataDir
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("transport.driver", "sim")
	v.SetDefault("transport.plugin_binary", "")
	v.SetDefault("transport.command_timeout", "5s")
	v.SetDefault("transport.connect_timeout", "10s")
	v.SetDefault("simulator.seed", 1)
	v.SetDefault("simulator.connect_failure_rate", 0.2)
	v.SetDefault("simulator.command_failure_rate", 0.0)
	v.SetDefault("simulator.discovery_rate", 0.5)
	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("schedule.sweep_interval", "10s")
	v.SetDefault("schedule.promotion_timeout", "5s")
	v.SetDefault("monitor.poll_interval", "15s")
	v.SetDefault("http.addr", "127.0.0.1:8787")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5000"})
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Transport.Driver {
	case "sim":
	case "plugin":
		if strings.TrimSpace(c.Transport.PluginBinary) == "" {
			return fmt.Errorf("transport.plugin_binary is required for the plugin driver")
		}
	default:
		return fmt.Errorf("unsupported transport driver %q", c.Transport.Driver)
	}
	for name, rate := range map[string]float64{
		"simulator.connect_failure_rate": c.Simulator.ConnectFailureRate,
		"simulator.command_failure_rate": c.Simulator.CommandFailureRate,
		"simulator.discovery_rate":       c.Simulator.DiscoveryRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, rate)
		}
	}
	for name, d := range map[string]time.Duration{
		"transport.command_timeout":  c.Transport.CommandTimeout,
		"transport.connect_timeout":  c.Transport.ConnectTimeout,
		"session.tick_interval":      c.Session.TickInterval,
		"schedule.sweep_interval":    c.Schedule.SweepInterval,
		"schedule.promotion_timeout": c.Schedule.PromotionTimeout,
		"monitor.poll_interval":      c.Monitor.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Schedule.SweepInterval > 15*time.Second {
		return fmt.Errorf("schedule.sweep_interval must not exceed 15s")
	}
	return nil
}

// WriteDefault renders the default configuration into <dataDir>/config.yaml.
// An existing file is left untouched.
func WriteDefault(dataDir string) (string, error) {
	path := filepath.Join(dataDir, configFileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	cfg := Default(dataDir)
	buf := bytes.Buffer{}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(renderable(cfg)); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

// renderable keeps durations human readable in the written file.
func renderable(c Config) map[string]any {
	return map[string]any{
		"log":     map[string]any{"level": c.Log.Level, "format": c.Log.Format},
		"storage": map[string]any{"driver": c.Storage.Driver},
		"transport": map[string]any{
			"driver":          c.Transport.Driver,
			"plugin_binary":   c.Transport.PluginBinary,
			"command_timeout": c.Transport.CommandTimeout.String(),
			"connect_timeout": c.Transport.ConnectTimeout.String(),
		},
		"simulator": map[string]any{
			"seed":                 c.Simulator.Seed,
			"connect_failure_rate": c.Simulator.ConnectFailureRate,
			"command_failure_rate": c.Simulator.CommandFailureRate,
			"discovery_rate":       c.Simulator.DiscoveryRate,
		},
		"session": map[string]any{"tick_interval": c.Session.TickInterval.String()},
		"schedule": map[string]any{
			"sweep_interval":    c.Schedule.SweepInterval.String(),
			"promotion_timeout": c.Schedule.PromotionTimeout.String(),
		},
		"monitor": map[string]any{"poll_interval": c.Monitor.PollInterval.String()},
		"http":    map[string]any{"addr": c.HTTP.Addr, "allowed_origins": c.HTTP.AllowedOrigins},
	}
}
