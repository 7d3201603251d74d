// Package config loads node configuration from a YAML file with FABRIC_*
// environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"
)

// Config is the full configuration for either role. Size limits are given
// as human-readable strings ("100MB", "1MiB") and parsed into bytes.
type Config struct {
	Node struct {
		ListenHost   string `mapstructure:"listen_host"`
		ListenPort   int    `mapstructure:"listen_port"`
		DataDir      string `mapstructure:"data_dir"`
		IdentityFile string `mapstructure:"identity_file"`
		LogLevel     string `mapstructure:"log_level"`
		MetricsAddr  string `mapstructure:"metrics_addr"`
	} `mapstructure:"node"`

	Tracker struct {
		Addr              string        `mapstructure:"addr"`
		PeerTimeout       time.Duration `mapstructure:"peer_timeout"`
		JanitorInterval   time.Duration `mapstructure:"janitor_interval"`
		OwnedRegistryFile string        `mapstructure:"owned_registry_file"`
	} `mapstructure:"tracker"`

	Peer struct {
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
		TaskTimeout       time.Duration `mapstructure:"task_timeout"`
		SocketTimeout     time.Duration `mapstructure:"socket_timeout"`
		MaxConnections    int           `mapstructure:"max_connections"`
		Scheduler         string        `mapstructure:"scheduler"`
		RoundRobinQuantum time.Duration `mapstructure:"round_robin_quantum"`
		MaxFileSize       string        `mapstructure:"max_file_size"`
		MaxFrameSize      string        `mapstructure:"max_frame_size"`
		ChunkSize         string        `mapstructure:"chunk_size"`
	} `mapstructure:"peer"`

	Cache struct {
		TTL      time.Duration `mapstructure:"ttl"`
		Capacity int           `mapstructure:"capacity"`
	} `mapstructure:"cache"`

	History struct {
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"history"`

	Quota struct {
		MaxCPUTasks   int           `mapstructure:"max_cpu_tasks"`
		MaxMemoryKeys int           `mapstructure:"max_memory_keys"`
		MaxStorage    string        `mapstructure:"max_storage"`
		Window        time.Duration `mapstructure:"window"`
	} `mapstructure:"quota"`

	Arena struct {
		Size      string `mapstructure:"size"`
		Algorithm string `mapstructure:"algorithm"`
	} `mapstructure:"arena"`
}

// Load reads the config file at path. A missing path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvPrefix("FABRIC")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.listen_host", "0.0.0.0")
	v.SetDefault("node.listen_port", 9000)
	v.SetDefault("node.data_dir", "fabric_data")
	v.SetDefault("node.identity_file", "peer_identity")
	v.SetDefault("node.log_level", "info")

	v.SetDefault("tracker.addr", "127.0.0.1:8888")
	v.SetDefault("tracker.peer_timeout", 30*time.Second)
	v.SetDefault("tracker.janitor_interval", 10*time.Second)
	v.SetDefault("tracker.owned_registry_file", "owned_files.json")

	v.SetDefault("peer.heartbeat_interval", 10*time.Second)
	v.SetDefault("peer.task_timeout", 60*time.Second)
	v.SetDefault("peer.socket_timeout", 30*time.Second)
	v.SetDefault("peer.max_connections", 256)
	v.SetDefault("peer.scheduler", "FCFS")
	v.SetDefault("peer.round_robin_quantum", time.Second)
	v.SetDefault("peer.max_file_size", "100MB")
	v.SetDefault("peer.max_frame_size", "128MiB")
	v.SetDefault("peer.chunk_size", "1MiB")

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("history.capacity", 1000)

	v.SetDefault("quota.max_cpu_tasks", 100)
	v.SetDefault("quota.max_memory_keys", 1000)
	v.SetDefault("quota.max_storage", "100MB")
	v.SetDefault("quota.window", time.Hour)

	v.SetDefault("arena.size", "1MiB")
	v.SetDefault("arena.algorithm", "FIRST_FIT")
}

// Bytes parses a datasize string such as "100MB" or "1MiB".
func Bytes(s string) (int64, error) {
	var ds datasize.ByteSize
	if err := ds.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(ds.Bytes()), nil
}
