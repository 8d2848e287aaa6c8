// Package config loads server configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Instrument struct {
	TickSize string `mapstructure:"tick_size"`
	MinPrice string `mapstructure:"min_price"`
	MaxPrice string `mapstructure:"max_price"`
}

type WAL struct {
	EntryDir    string `mapstructure:"entry_dir"`
	ExitDir     string `mapstructure:"exit_dir"`
	SegmentSize int64  `mapstructure:"segment_size"`
}

type Kafka struct {
	Brokers           []string      `mapstructure:"brokers"`
	Topic             string        `mapstructure:"topic"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
}

type Config struct {
	GRPCListen string     `mapstructure:"grpc_listen"`
	HTTPListen string     `mapstructure:"http_listen"`
	Instrument Instrument `mapstructure:"instrument"`
	WAL        WAL        `mapstructure:"wal"`
	Kafka      Kafka      `mapstructure:"kafka"`
}

// Load reads config.yaml from the given path (or the working directory)
// with ODIN_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("ODIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("grpc_listen", ":50051")
	v.SetDefault("http_listen", ":8080")
	v.SetDefault("instrument.tick_size", "0.25")
	v.SetDefault("instrument.min_price", "0.25")
	v.SetDefault("instrument.max_price", "10000")
	v.SetDefault("wal.entry_dir", "./data/wal_entry")
	v.SetDefault("wal.exit_dir", "./data/wal_exit")
	v.SetDefault("wal.segment_size", 64*1024*1024)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "engine.events")
	v.SetDefault("kafka.broadcast_interval", 250*time.Millisecond)

	if err := v.ReadInConfig(); err != nil {
		// missing file falls back to defaults and environment
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
