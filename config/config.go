// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package config loads the node's process configuration from environment
// variables, an optional config file, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "FEDNODE"
	ConfigName = "fednode.config"
	ConfigType = "yml"
	ConfigPath = "/etc/fednode"

	DefaultListenAddress  = "0.0.0.0:8080"
	DefaultPublicURL      = "http://localhost:8080"
	DefaultBlobDir        = "./data/blobs"
	DefaultLogFormat      = "json"
	DefaultRegistryKind   = "memory"
	DefaultSQLPath        = "./data/registry.db"
	DefaultFileDir        = "./data/registry"
	DefaultAllowAll       = false
	DefaultAllowPost      = false
	DefaultGossipFanout   = 12
	DefaultGossipCapacity = 1024
	DefaultGossipTimeout  = 2 * time.Second
	DefaultFetchTimeout   = 5 * time.Second
	DefaultMetricsAddress = ":9090"
	DefaultMetricsEnabled = true
)

// Config is the fully resolved process configuration for a node.
type Config struct {
	ListenAddress string `mapstructure:"listen_address"`
	PublicURL     string `mapstructure:"public_url"`
	BlobDir       string `mapstructure:"blob_dir"`
	LogFormat     string `mapstructure:"log_format"`
	AllowAll      bool   `mapstructure:"allow_all"`
	AllowPost     bool   `mapstructure:"allow_post"`

	Registry RegistryConfig `mapstructure:"registry"`
	Gossip   GossipConfig   `mapstructure:"gossip"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type RegistryConfig struct {
	// Backend selects the PeerRegistry implementation: "memory", "file", or "sql".
	Backend string `mapstructure:"backend"`

	SQLPath string `mapstructure:"sql_path"`
	FileDir string `mapstructure:"file_dir"`

	SeedNotifyPeers  []string `mapstructure:"seed_notify_peers"`
	SeedAllowOrigins []string `mapstructure:"seed_allow_origins"`
	SeedDenyOrigins  []string `mapstructure:"seed_deny_origins"`
}

type GossipConfig struct {
	Fanout         int           `mapstructure:"fanout"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type FetchConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Load reads configuration from FEDNODE_-prefixed environment variables, an
// optional fednode.config.yml, and falls back to defaults. A missing config
// file is not an error.
func Load() (*Config, error) {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)

	v.SetConfigName(ConfigName)
	v.SetConfigType(ConfigType)
	v.AddConfigPath(ConfigPath)
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		notFound := viper.ConfigFileNotFoundError{}
		if errors.As(err, &notFound) {
			log.Println("fednode: config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("public_url", DefaultPublicURL)
	v.SetDefault("blob_dir", DefaultBlobDir)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("allow_all", DefaultAllowAll)
	v.SetDefault("allow_post", DefaultAllowPost)

	v.SetDefault("registry.backend", DefaultRegistryKind)
	v.SetDefault("registry.sql_path", DefaultSQLPath)
	v.SetDefault("registry.file_dir", DefaultFileDir)
	v.SetDefault("registry.seed_notify_peers", []string{})
	v.SetDefault("registry.seed_allow_origins", []string{})
	v.SetDefault("registry.seed_deny_origins", []string{})

	v.SetDefault("gossip.fanout", DefaultGossipFanout)
	v.SetDefault("gossip.queue_capacity", DefaultGossipCapacity)
	v.SetDefault("gossip.request_timeout", DefaultGossipTimeout)

	v.SetDefault("fetch.request_timeout", DefaultFetchTimeout)

	v.SetDefault("metrics.enabled", DefaultMetricsEnabled)
	v.SetDefault("metrics.address", DefaultMetricsAddress)

	decodeHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks)); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}
