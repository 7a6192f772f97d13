package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Selector picks the deployment a command works against.
type Selector struct {
	Network     string
	Protocol    string
	Deployments string
}

// Deployment resolves the selector against the built-in registry plus any
// descriptors in the Deployments file. An unknown network or protocol yields
// the zero-value sentinel.
func (s Selector) Deployment(logger *zap.Logger) (Deployment, error) {
	registry := NewRegistry()
	if s.Deployments != "" {
		if err := registry.LoadDeployments(s.Deployments); err != nil {
			return Deployment{}, err
		}
	}
	return registry.Resolve(s.Network, s.Protocol, logger), nil
}

// Config holds configuration values for the run command.
type Config struct {
	Selector
	RPCURL            string
	// Comptroller overrides the deployment's comptroller address.
	Comptroller       string
	FromBlock         uint64
	ToBlock           uint64
	Markets           []string
	Topic0            []string
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	SeedMarkets       bool
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(2000),
		"out":                "./data/logs.jsonl",
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"seed-markets":       false,
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Selector:          selector(v),
		RPCURL:            v.GetString("rpc"),
		Comptroller:       v.GetString("comptroller"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Markets:           getStringSlice(v, "market"),
		Topic0:            getStringSlice(v, "topic0"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		SeedMarkets:       v.GetBool("seed-markets"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// newViper builds a viper instance with the INDEXER_ env prefix, the given
// defaults, bound flags and an optional config file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("network", "mainnet")
	v.SetDefault("protocol", "compound-v2")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func selector(v *viper.Viper) Selector {
	return Selector{
		Network:     v.GetString("network"),
		Protocol:    v.GetString("protocol"),
		Deployments: v.GetString("deployments"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
