// Package config loads service configuration from a JSON file backend with
// KEYPRINT_* environment overrides, and manages the API bearer token in a
// separate secrets file.
package config

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Capture  CaptureConfig
	Identify IdentifyConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type CaptureConfig struct {
	// BatchSize is the capture stream flush threshold.
	BatchSize int
}

type IdentifyConfig struct {
	MatchThreshold    float64
	PossibleThreshold float64
	RecordThreshold   float64
	MinEvents         int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Capture: CaptureConfig{
			BatchSize: 75,
		},
		Identify: IdentifyConfig{
			MatchThreshold:    0.85,
			PossibleThreshold: 0.75,
			RecordThreshold:   0.60,
			MinEvents:         75,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/keyprint/config.json, then applies KEYPRINT_*
// environment overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
