package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete foresight configuration
type Config struct {
	Dataset  DatasetConfig  `mapstructure:"dataset" yaml:"dataset"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Model    ModelConfig    `mapstructure:"model" yaml:"model"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Trainer  TrainerConfig  `mapstructure:"trainer" yaml:"trainer"`
}

// DatasetConfig controls synthetic data generation
type DatasetConfig struct {
	// NumFeatures is the number of feature vectors, and the length of the
	// prediction input vector (default: 5)
	NumFeatures int `mapstructure:"num_features" yaml:"num_features"`
	// FeatureLength is the length of each feature vector and the number of
	// label vectors (default: 50)
	FeatureLength int `mapstructure:"feature_length" yaml:"feature_length"`
	// TargetLength is the length of each one-hot label vector (default: 3)
	TargetLength int `mapstructure:"target_length" yaml:"target_length"`
	// MinValue and MaxValue bound generated feature values, [min, max)
	MinValue float64 `mapstructure:"min_value" yaml:"min_value"`
	MaxValue float64 `mapstructure:"max_value" yaml:"max_value"`
	// Seed fixes the random source; 0 seeds from the clock
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// SessionConfig controls session identity
type SessionConfig struct {
	// ID overrides the per-process random session ID when non-empty
	ID string `mapstructure:"id" yaml:"id"`
}

// StorageConfig controls where staged, uploaded and deployed artifacts live.
// Relative paths are resolved against Root.
type StorageConfig struct {
	Root        string `mapstructure:"root" yaml:"root"`
	WriteBucket string `mapstructure:"write_bucket" yaml:"write_bucket"`
	ReadBucket  string `mapstructure:"read_bucket" yaml:"read_bucket"`
	StagingDir  string `mapstructure:"staging_dir" yaml:"staging_dir"`
	MetadataDB  string `mapstructure:"metadata_db" yaml:"metadata_db"`
	TableName   string `mapstructure:"table_name" yaml:"table_name"`
}

// ModelConfig controls model retrieval and inference
type ModelConfig struct {
	// Suffix is appended to "{sessionId}_model0" to form the remote name
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
	// UseAccelerator is passed to every prediction call
	UseAccelerator bool `mapstructure:"use_accelerator" yaml:"use_accelerator"`
	// CacheDir receives downloaded artifacts, relative to storage.root
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
	// CacheTTLMinutes is how long a compiled model stays cached (0 = no expiry)
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes" yaml:"cache_ttl_minutes"`
}

// PipelineConfig controls orchestrator behavior
type PipelineConfig struct {
	// FormatTimeoutSeconds bounds the blocking wait on the format step.
	// 0 waits forever.
	FormatTimeoutSeconds int `mapstructure:"format_timeout_seconds" yaml:"format_timeout_seconds"`
	// UploadPolicy is "race" (each upload reports independently) or
	// "joined" (one combined report once both finish)
	UploadPolicy string `mapstructure:"upload_policy" yaml:"upload_policy"`
	// LockTimeoutSeconds reports the orchestrator mutex as a potential
	// deadlock when held longer than this (0 = disabled)
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds" yaml:"lock_timeout_seconds"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds foresight.log, relative to storage.root; "-" logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig controls OpenTelemetry span export
type TracingConfig struct {
	// Enabled exports pipeline spans over OTLP/HTTP (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint is the collector's host:port (default: "localhost:4318")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Insecure sends spans over plain HTTP (default: true)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
	// ServiceName is reported as the service.name resource attribute
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// SampleRatio is the fraction of root spans kept, in [0, 1] (default: 1)
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// TrainerConfig controls the local training service
type TrainerConfig struct {
	// Auto trains a model right after upload in headless runs (default: true)
	Auto         bool    `mapstructure:"auto" yaml:"auto"`
	Epochs       int     `mapstructure:"epochs" yaml:"epochs"`
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			NumFeatures:   5,
			FeatureLength: 50,
			TargetLength:  3,
			MinValue:      0,
			MaxValue:      1,
			Seed:          0,
		},
		Session: SessionConfig{
			ID: "", // Random per process
		},
		Storage: StorageConfig{
			Root:        ".foresight",
			WriteBucket: "foresight-uploads",
			ReadBucket:  "foresight-deployments",
			StagingDir:  "staging",
			MetadataDB:  "metadata.db",
			TableName:   "records",
		},
		Model: ModelConfig{
			Suffix:          ".fsmodel",
			UseAccelerator:  true,
			CacheDir:        "models",
			CacheTTLMinutes: 60,
		},
		Pipeline: PipelineConfig{
			FormatTimeoutSeconds: 30,
			UploadPolicy:         UploadPolicyRace,
			LockTimeoutSeconds:   30,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "foresight",
			SampleRatio: 1,
		},
		Trainer: TrainerConfig{
			Auto:         true,
			Epochs:       200,
			LearningRate: 0.5,
		},
	}
}

// Upload policies
const (
	UploadPolicyRace   = "race"
	UploadPolicyJoined = "joined"
)

// FormatTimeout returns the format wait bound (0 means unbounded)
func (c *PipelineConfig) FormatTimeout() time.Duration {
	return time.Duration(c.FormatTimeoutSeconds) * time.Second
}

// LockTimeout returns the deadlock report threshold (0 means disabled)
func (c *PipelineConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// CacheTTL returns the compiled model cache expiry (0 means no expiry)
func (c *ModelConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Resolve returns p joined to Root unless p is already absolute.
func (s *StorageConfig) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Root, p)
}

// LogDir returns the resolved log directory, or "" for stderr.
func (c *Config) LogDir() string {
	if c.Logging.Dir == "-" || c.Logging.Dir == "" {
		return ""
	}
	return c.Storage.Resolve(c.Logging.Dir)
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Dataset defaults
	viper.SetDefault("dataset.num_features", defaults.Dataset.NumFeatures)
	viper.SetDefault("dataset.feature_length", defaults.Dataset.FeatureLength)
	viper.SetDefault("dataset.target_length", defaults.Dataset.TargetLength)
	viper.SetDefault("dataset.min_value", defaults.Dataset.MinValue)
	viper.SetDefault("dataset.max_value", defaults.Dataset.MaxValue)
	viper.SetDefault("dataset.seed", defaults.Dataset.Seed)

	// Session defaults
	viper.SetDefault("session.id", defaults.Session.ID)

	// Storage defaults
	viper.SetDefault("storage.root", defaults.Storage.Root)
	viper.SetDefault("storage.write_bucket", defaults.Storage.WriteBucket)
	viper.SetDefault("storage.read_bucket", defaults.Storage.ReadBucket)
	viper.SetDefault("storage.staging_dir", defaults.Storage.StagingDir)
	viper.SetDefault("storage.metadata_db", defaults.Storage.MetadataDB)
	viper.SetDefault("storage.table_name", defaults.Storage.TableName)

	// Model defaults
	viper.SetDefault("model.suffix", defaults.Model.Suffix)
	viper.SetDefault("model.use_accelerator", defaults.Model.UseAccelerator)
	viper.SetDefault("model.cache_dir", defaults.Model.CacheDir)
	viper.SetDefault("model.cache_ttl_minutes", defaults.Model.CacheTTLMinutes)

	// Pipeline defaults
	viper.SetDefault("pipeline.format_timeout_seconds", defaults.Pipeline.FormatTimeoutSeconds)
	viper.SetDefault("pipeline.upload_policy", defaults.Pipeline.UploadPolicy)
	viper.SetDefault("pipeline.lock_timeout_seconds", defaults.Pipeline.LockTimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	viper.SetDefault("tracing.insecure", defaults.Tracing.Insecure)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	viper.SetDefault("tracing.sample_ratio", defaults.Tracing.SampleRatio)

	// Trainer defaults
	viper.SetDefault("trainer.auto", defaults.Trainer.Auto)
	viper.SetDefault("trainer.epochs", defaults.Trainer.Epochs)
	viper.SetDefault("trainer.learning_rate", defaults.Trainer.LearningRate)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foresight")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foresight"
	}
	return filepath.Join(home, ".config", "foresight")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
