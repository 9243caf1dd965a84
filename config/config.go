package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aep/docsql/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Store     StoreConfig     `mapstructure:"store"`
	KV        KVConfig        `mapstructure:"kv"`
	Server    ServerConfig    `mapstructure:"server"`
	Shell     ShellConfig     `mapstructure:"shell"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// StoreConfig selects what the query pipeline talks to. An endpoint means
// a docsql server over HTTP, "local" opens the kv backend in-process.
type StoreConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

type KVConfig struct {
	Backend string   `mapstructure:"backend"`
	Path    string   `mapstructure:"path"`
	PD      []string `mapstructure:"pd"`
}

type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	StatsListen  string        `mapstructure:"stats_listen"`
	ReadOnly     []string      `mapstructure:"read_only"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxPageSize  int           `mapstructure:"max_page_size"`
	Nats         string        `mapstructure:"nats"`
	EmbeddedNats int           `mapstructure:"embedded_nats"`
}

type ShellConfig struct {
	PageSize     int    `mapstructure:"page_size"`
	History      string `mapstructure:"history"`
	DiscardStale bool   `mapstructure:"discard_stale"`
}

type TelemetryConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// flag name -> config key, for flags that may be defined on a command
var flagKeys = map[string]string{
	"log-level":     "log_level",
	"endpoint":      "store.endpoint",
	"kv":            "kv.backend",
	"kv-path":       "kv.path",
	"pd":            "kv.pd",
	"listen":        "server.listen",
	"stats-listen":  "server.stats_listen",
	"read-only":     "server.read_only",
	"nats":          "server.nats",
	"embedded-nats": "server.embedded_nats",
	"page-size":     "shell.page_size",
	"history":       "shell.history",
	"discard-stale": "shell.discard_stale",
	"otlp-endpoint": "telemetry.endpoint",
	"max-page-size": "server.max_page_size",
	"cache-ttl":     "server.cache_ttl",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store.endpoint", "http://localhost:5052")
	v.SetDefault("kv.backend", "mem")
	v.SetDefault("kv.path", "docsql-data")
	v.SetDefault("server.listen", ":5052")
	v.SetDefault("server.stats_listen", ":27667")
	v.SetDefault("server.cache_ttl", 60*time.Second)
	v.SetDefault("server.max_page_size", 200)
	v.SetDefault("shell.page_size", 25)
}

// Load merges, in increasing precedence: defaults, the file named by the
// --config flag, DOCSQL_* environment variables and command line flags.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", f.Value.String(), err)
			}
		}
	}

	v.SetEnvPrefix("DOCSQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) KVOptions() kv.Options {
	return kv.Options{
		Backend:     c.KV.Backend,
		Path:        c.KV.Path,
		PDEndpoints: c.KV.PD,
	}
}
