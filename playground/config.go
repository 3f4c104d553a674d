package playground

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsawler/go-mlplayground/dataset"
	"github.com/tsawler/go-mlplayground/kmeans"
	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/loop"
	"github.com/tsawler/go-mlplayground/qlearn"
	"github.com/tsawler/go-mlplayground/regression"
	"github.com/tsawler/go-mlplayground/training"
)

// Duration is a time.Duration that reads "500ms"-style strings or integer nanoseconds from JSON
type Duration time.Duration

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// UploadConfig bounds CSV uploads
type UploadConfig struct {
	MaxSizeMB float64 `json:"max_size_mb"`
}

// RegressionConfig configures the linear-regression widget
type RegressionConfig struct {
	LearningRate float64                 `json:"learning_rate"`
	Iterations   int                     `json:"iterations"`
	Samples      int                     `json:"samples"`
	Schedule     training.ScheduleConfig `json:"schedule"`
	Interval     Duration                `json:"interval"`
}

// KMeansConfig configures the k-means widget
type KMeansConfig struct {
	K        int      `json:"k"`
	Points   int      `json:"points"`
	Extent   float64  `json:"extent"`
	Interval Duration `json:"interval"`
}

// QLearningConfig configures the Q-learning widget
type QLearningConfig struct {
	Interval Duration `json:"interval"`
}

// PlottingConfig configures the optional sidecar plotting service
type PlottingConfig struct {
	Enabled       bool     `json:"enabled"`
	BaseURL       string   `json:"base_url"`
	Timeout       Duration `json:"timeout"`
	RetryAttempts int      `json:"retry_attempts"`
	Every         int      `json:"every"` // Send plots on every Nth published frame
}

// Config is the playground configuration
type Config struct {
	Seed     int64  `json:"seed"` // 0 seeds from the clock
	Addr     string `json:"addr"`
	LogLevel string `json:"log_level"`

	Upload     UploadConfig     `json:"upload"`
	Regression RegressionConfig `json:"regression"`
	KMeans     KMeansConfig     `json:"kmeans"`
	QLearning  QLearningConfig  `json:"qlearning"`
	Plotting   PlottingConfig   `json:"plotting"`
}

// DefaultConfig returns the demo defaults
func DefaultConfig() Config {
	reg := regression.DefaultConfig()
	km := kmeans.DefaultConfig()
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Upload:   UploadConfig{MaxSizeMB: dataset.DefaultUploadOptions().MaxSizeMB},
		Regression: RegressionConfig{
			LearningRate: reg.LearningRate,
			Iterations:   reg.Iterations,
			Samples:      dataset.DefaultLinearSamples,
			Schedule:     training.ScheduleConfig{Name: "constant"},
			Interval:     Duration(loop.FrameInterval),
		},
		KMeans: KMeansConfig{
			K:        km.K,
			Points:   dataset.DefaultCloudSamples,
			Extent:   km.Extent,
			Interval: Duration(kmeans.DefaultInterval),
		},
		QLearning: QLearningConfig{
			Interval: Duration(qlearn.DefaultInterval),
		},
		Plotting: PlottingConfig{
			BaseURL:       "http://localhost:8080",
			Timeout:       Duration(30 * time.Second),
			RetryAttempts: 3,
			Every:         10,
		},
	}
}

// LoadConfig reads a JSON file over the defaults, so a file only needs the keys it changes
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Upload.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_size_mb must be positive, got %g", c.Upload.MaxSizeMB))
	}

	reg := regression.Config{LearningRate: c.Regression.LearningRate, Iterations: c.Regression.Iterations}
	if err := reg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Regression.Samples < 0 {
		errs = append(errs, fmt.Errorf("regression.samples must not be negative, got %d", c.Regression.Samples))
	}
	if _, err := training.NewScheduler(c.Regression.Schedule); err != nil {
		errs = append(errs, err)
	}
	if c.Regression.Interval < 0 {
		errs = append(errs, errors.New("regression.interval must not be negative"))
	}

	km := kmeans.Config{K: c.KMeans.K, Extent: c.KMeans.Extent}
	if err := km.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.KMeans.Points < 0 {
		errs = append(errs, fmt.Errorf("kmeans.points must not be negative, got %d", c.KMeans.Points))
	}
	if c.KMeans.Interval < 0 {
		errs = append(errs, errors.New("kmeans.interval must not be negative"))
	}
	if c.QLearning.Interval < 0 {
		errs = append(errs, errors.New("qlearning.interval must not be negative"))
	}

	if c.Plotting.Enabled {
		if c.Plotting.BaseURL == "" {
			errs = append(errs, errors.New("plotting.base_url is required when plotting is enabled"))
		}
		if c.Plotting.Every < 1 {
			errs = append(errs, fmt.Errorf("plotting.every must be at least 1, got %d", c.Plotting.Every))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
