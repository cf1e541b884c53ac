package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zsiec/udplog/internal/errors"
)

type Config struct {
	Receiver    ReceiverConfig  `mapstructure:"receiver"`
	Formatter   FormatterConfig `mapstructure:"formatter"`
	Output      OutputConfig    `mapstructure:"output"`
	Queues      QueuesConfig    `mapstructure:"queues"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Server      ServerConfig    `mapstructure:"server"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Registry    RegistryConfig  `mapstructure:"registry"`
	Interactive bool            `mapstructure:"interactive"`
}

type ReceiverConfig struct {
	Address             string `mapstructure:"address"`   // unicast bind address or multicast group
	Port                int    `mapstructure:"port"`
	Interface           string `mapstructure:"interface"` // multicast interface name, empty for default
	ReuseAddress        bool   `mapstructure:"reuse_address"`
	ReadBuffer          int    `mapstructure:"read_buffer"` // SO_RCVBUF bytes, 0 keeps the OS default
	MaxPacketsPerSecond int    `mapstructure:"max_packets_per_second"`
}

type FormatterConfig struct {
	Filter string `mapstructure:"filter"`
}

type OutputConfig struct {
	Path         string `mapstructure:"path"`
	MinFreeBytes uint64 `mapstructure:"min_free_bytes"`
}

type QueuesConfig struct {
	InboundCapacity  int           `mapstructure:"inbound_capacity"`
	OutboundCapacity int           `mapstructure:"outbound_capacity"`
	IdleSleep        time.Duration `mapstructure:"idle_sleep"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RegistryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RedisAddr         string        `mapstructure:"redis_addr"`
	RedisPassword     string        `mapstructure:"redis_password"`
	RedisDB           int           `mapstructure:"redis_db"`
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"address":     "receiver.address",
	"port":        "receiver.port",
	"filter":      "formatter.filter",
	"output":      "output.path",
	"interactive": "interactive",
}

// NewFlagSet declares the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("address", "a", "0.0.0.0", "listen address or multicast group")
	fs.IntP("port", "p", 7768, "listen port")
	fs.StringP("filter", "f", "*", "record filter")
	fs.StringP("output", "o", "./udplog.log", "output file")
	fs.StringP("config", "c", "", "optional YAML config file")
	fs.BoolP("interactive", "i", false, "show the live console")
	fs.Bool("version", false, "print version and exit")
	fs.BoolP("help", "h", false, "print this help and exit")
	fs.SortFlags = false
	return fs
}

// Load builds the configuration from defaults, an optional YAML file,
// UDPLOG_* environment variables and, highest priority, flags that were
// explicitly set on the command line.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("UDPLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapConfigError(err, "failed to read config")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.WrapConfigError(err, "failed to bind flag "+name)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapConfigError(err, "failed to unmarshal config")
	}

	if cfg.Output.Path != "" {
		abs, err := filepath.Abs(cfg.Output.Path)
		if err != nil {
			return nil, errors.WrapConfigError(err, "failed to resolve output path")
		}
		cfg.Output.Path = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapConfigError(err, "invalid config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Receiver defaults
	v.SetDefault("receiver.address", "0.0.0.0")
	v.SetDefault("receiver.port", 7768)
	v.SetDefault("receiver.interface", "")
	v.SetDefault("receiver.reuse_address", true)
	v.SetDefault("receiver.read_buffer", 0)
	v.SetDefault("receiver.max_packets_per_second", 0) // unlimited

	v.SetDefault("formatter.filter", "*")

	// Output defaults
	v.SetDefault("output.path", "./udplog.log")
	v.SetDefault("output.min_free_bytes", 64<<20) // 64MB

	// Queue defaults
	v.SetDefault("queues.inbound_capacity", 64)
	v.SetDefault("queues.outbound_capacity", 64)
	v.SetDefault("queues.idle_sleep", "50us")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Admin server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_addr", "127.0.0.1")
	v.SetDefault("server.port", 9768)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Registry defaults
	v.SetDefault("registry.enabled", false)
	v.SetDefault("registry.redis_addr", "localhost:6379")
	v.SetDefault("registry.redis_db", 0)
	v.SetDefault("registry.ttl", "30s")
	v.SetDefault("registry.heartbeat_interval", "10s")
	v.SetDefault("registry.dial_timeout", "5s")

	v.SetDefault("interactive", false)
}
