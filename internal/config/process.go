package config

import (
	"github.com/spf13/pflag"
)

// ProcessConfig holds configuration for the process command.
type ProcessConfig struct {
	Selector
	Input       string
	PGDSN       string
	BatchSize   int
	StateFile   string
	StateName   string
	FlushBlocks int
	LogLevel    string
}

// LoadProcess merges config file, environment variables, and flags into ProcessConfig.
func LoadProcess(cfgFile string, flags *pflag.FlagSet) (ProcessConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":           "./data/typed_events.jsonl",
		"batch-size":   1000,
		"flush-blocks": 100,
	})
	if err != nil {
		return ProcessConfig{}, err
	}

	cfg := ProcessConfig{
		Selector:    selector(v),
		Input:       v.GetString("in"),
		PGDSN:       v.GetString("pg-dsn"),
		BatchSize:   v.GetInt("batch-size"),
		StateFile:   v.GetString("state-file"),
		StateName:   v.GetString("state-name"),
		FlushBlocks: v.GetInt("flush-blocks"),
		LogLevel:    v.GetString("log-level"),
	}
	if cfg.StateName == "" {
		cfg.StateName = "process:" + cfg.Network + ":" + cfg.Protocol
	}

	return cfg, nil
}
