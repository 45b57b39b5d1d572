// Package config loads the YAML configuration shared by the trainer and
// the server. Every key can be overridden with a SENTIMENT_* variable.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPath = "config.yaml"
	// PathEnv names an alternative config file.
	PathEnv = "SENTIMENT_CONFIG"
)

type Config struct {
	Tracking struct {
		URI        string `yaml:"uri"`
		Experiment string `yaml:"experiment"`
	} `yaml:"tracking"`
	Training struct {
		DataPath      string  `yaml:"data_path"`
		TestRatio     float64 `yaml:"test_ratio"`
		RandomState   int64   `yaml:"random_state"`
		PositiveLabel string  `yaml:"positive_label"`
	} `yaml:"training"`
	Http struct {
		Port         int           `yaml:"port"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

func Default() *Config {
	var c Config
	c.Tracking.URI = "file:app/model_store"
	c.Tracking.Experiment = "Sentiment Analysis"
	c.Training.DataPath = "data/reviews.csv"
	c.Training.TestRatio = 0.2
	c.Training.RandomState = 42
	c.Training.PositiveLabel = "positive"
	c.Http.Port = 5000
	c.Http.Timeout = 30 * time.Second
	c.Http.MaxBodyBytes = 1 << 20
	c.Cache.Size = 1024
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return &c
}

// Load reads the file named by SENTIMENT_CONFIG, or path when unset. A
// missing file is not an error: defaults and environment still apply.
func Load(path string) (*Config, error) {
	if env := os.Getenv(PathEnv); env != "" {
		path = env
	}
	config := Default()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Tracking.URI, "SENTIMENT_TRACKING_URI")
	setString(&c.Tracking.Experiment, "SENTIMENT_EXPERIMENT")
	setString(&c.Training.DataPath, "SENTIMENT_DATA_PATH")
	setString(&c.Training.PositiveLabel, "SENTIMENT_POSITIVE_LABEL")
	setString(&c.Log.Level, "SENTIMENT_LOG_LEVEL")
	setString(&c.Log.File, "SENTIMENT_LOG_FILE")

	var errs []error
	errs = append(errs,
		setFloat(&c.Training.TestRatio, "SENTIMENT_TEST_RATIO"),
		setInt64(&c.Training.RandomState, "SENTIMENT_RANDOM_STATE"),
		setInt(&c.Http.Port, "SENTIMENT_HTTP_PORT"),
		setInt64(&c.Http.MaxBodyBytes, "SENTIMENT_HTTP_MAX_BODY_BYTES"),
		setInt(&c.Cache.Size, "SENTIMENT_CACHE_SIZE"),
	)
	if v := os.Getenv("SENTIMENT_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SENTIMENT_HTTP_TIMEOUT: %w", err))
		} else {
			c.Http.Timeout = d
		}
	}
	return multierr.Combine(errs...)
}

func (c *Config) Validate() error {
	if c.Tracking.URI == "" {
		return errors.New("tracking.uri is required")
	}
	if c.Tracking.Experiment == "" {
		return errors.New("tracking.experiment is required")
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0, 1), got %v", c.Training.TestRatio)
	}
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.Http.Port)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative: %d", c.Cache.Size)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
