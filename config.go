package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sandflysecurity/sandfly-entropyworker/pkg/task"
)

const constMaxConfigSize = 1 << 20

type s3Config struct {
	Bucket    string `yaml:"bucket" env:"ENTROPY_S3_BUCKET"`
	Prefix    string `yaml:"prefix" env:"ENTROPY_S3_PREFIX"`
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT_URL"`
	Region    string `yaml:"region" env:"AWS_REGION"`
	AccessKey string `yaml:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretKey string `yaml:"-" env:"AWS_SECRET_ACCESS_KEY"`
}

type workerConfig struct {
	OutputPath  string `yaml:"output_path" env:"ENTROPY_OUTPUT_PATH"`
	Concurrency int    `yaml:"concurrency" env:"ENTROPY_CONCURRENCY"`
	LogLevel    string `yaml:"log_level" env:"ENTROPY_LOG_LEVEL"`
	// Threshold is applied to requests that don't set one themselves.
	Threshold string `yaml:"threshold" env:"ENTROPY_THRESHOLD"`
	MirrorDir string `yaml:"mirror_dir" env:"ENTROPY_MIRROR_DIR"`
	// Delimiter of the results CSV.
	Delimiter string `yaml:"delimiter" env:"ENTROPY_CSV_DELIMITER"`

	S3 s3Config `yaml:"s3"`
}

func defaultConfig() *workerConfig {
	return &workerConfig{
		Concurrency: runtime.NumCPU(),
		LogLevel:    "info",
		Delimiter:   constDelimeterDefault,
	}
}

func loadConfigFile(cfg *workerConfig, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > constMaxConfigSize {
		return fmt.Errorf("config file too large: %s (%d bytes, max 1 MB)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// loadConfig resolves the worker config. Later sources win: defaults, YAML file, environment.
func loadConfig(envFile, configFile string) (*workerConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("error loading env file '%s': %w", envFile, err)
		}
	}

	cfg := defaultConfig()

	if configFile == "" {
		configFile = os.Getenv("ENTROPY_CONFIG_FILE")
	}
	if configFile != "" {
		if err := loadConfigFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}

	if utf8.RuneCountInString(cfg.Delimiter) != 1 {
		return nil, fmt.Errorf("error parsing config: delimiter must be a single character, got %q", cfg.Delimiter)
	}

	if cfg.Threshold != "" {
		if _, err := task.ParseThreshold(map[string]any{task.ThresholdOption: cfg.Threshold}); err != nil {
			return nil, fmt.Errorf("error parsing config: %w", err)
		}
	}

	return cfg, nil
}

// configFromFlags loads the config and applies the persistent command line flags on top.
func configFromFlags() (*workerConfig, error) {
	cfg, err := loadConfig(flagEnvFile, flagConfigFile)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagOutputPath != "" {
		cfg.OutputPath = flagOutputPath
	}
	return cfg, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
