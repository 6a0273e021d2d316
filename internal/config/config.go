// Package config resolves runtime settings from defaults, an optional YAML
// file, a .env file and SPOOFGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SPOOFGUARD_WORKERS.
const EnvPrefix = "SPOOFGUARD"

// Config holds the settings shared by every subcommand.
type Config struct {
	LogLevel        string        `mapstructure:"log_level"`
	DatabaseURL     string        `mapstructure:"database_url"`
	Workers         int           `mapstructure:"workers"`
	ExtractorCmd    string        `mapstructure:"extractor_cmd"`
	ExtractorScript string        `mapstructure:"extractor_script"`
	WorkerTimeout   time.Duration `mapstructure:"worker_timeout"`
	FeatureDir      string        `mapstructure:"feature_dir"`
	ResultDir       string        `mapstructure:"result_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "INFO")
	v.SetDefault("database_url", "")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("extractor_cmd", "python3")
	v.SetDefault("extractor_script", "python/extract.py")
	v.SetDefault("worker_timeout", "5m")
	v.SetDefault("feature_dir", "features")
	v.SetDefault("result_dir", "results")
}

// Load reads configuration. file may be empty; a missing .env is ignored.
func Load(file string) (*Config, error) {
	// .env file is optional, don't fail if not found
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = postgresFromEnv()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

// postgresFromEnv builds a connection string from the POSTGRES_* variables
// docker-compose setups export. It returns "" when POSTGRES_HOST is unset,
// which leaves the results database disabled.
func postgresFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
