package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KEYPRINT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KEYPRINT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "capture.batch_size", typ: kInt, env: "KEYPRINT_CAPTURE_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Capture.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.BatchSize },
	},
	{
		key: "identify.match_threshold", typ: kFloat, env: "KEYPRINT_IDENTIFY_MATCH_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Identify.MatchThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Identify.MatchThreshold },
	},
	{
		key: "identify.possible_threshold", typ: kFloat, env: "KEYPRINT_IDENTIFY_POSSIBLE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Identify.PossibleThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Identify.PossibleThreshold },
	},
	{
		key: "identify.record_threshold", typ: kFloat, env: "KEYPRINT_IDENTIFY_RECORD_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Identify.RecordThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Identify.RecordThreshold },
	},
	{
		key: "identify.min_events", typ: kInt, env: "KEYPRINT_IDENTIFY_MIN_EVENTS",
		apply:   func(cfg *Config, v any) { cfg.Identify.MinEvents = v.(int) },
		extract: func(cfg Config) any { return cfg.Identify.MinEvents },
	},
	{
		key: "log.level", typ: kString, env: "KEYPRINT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
