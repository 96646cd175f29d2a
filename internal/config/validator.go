package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "dataset.num_features")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// bucketNameRegex follows object-store bucket naming: lowercase
// alphanumerics, dots, hyphens and underscores.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// tableNameRegex restricts table names to plain SQL identifiers; the name is
// interpolated into DDL.
var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidUploadPolicies returns the list of valid upload policies
func ValidUploadPolicies() []string {
	return []string{UploadPolicyRace, UploadPolicyJoined}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDataset()...)
	errors = append(errors, c.validateStorage()...)
	errors = append(errors, c.validateModel()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateTracing()...)
	errors = append(errors, c.validateTrainer()...)

	return errors
}

func positive(field string, v int) []ValidationError {
	if v <= 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
	}
	return nil
}

func nonNegative(field string, v int) []ValidationError {
	if v < 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
	}
	return nil
}

// validateDataset validates the DatasetConfig
func (c *Config) validateDataset() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("dataset.num_features", c.Dataset.NumFeatures)...)
	errors = append(errors, positive("dataset.feature_length", c.Dataset.FeatureLength)...)
	errors = append(errors, positive("dataset.target_length", c.Dataset.TargetLength)...)

	if c.Dataset.MinValue >= c.Dataset.MaxValue {
		errors = append(errors, ValidationError{
			Field:   "dataset.max_value",
			Value:   c.Dataset.MaxValue,
			Message: fmt.Sprintf("must be greater than dataset.min_value (%v)", c.Dataset.MinValue),
		})
	}

	return errors
}

// validateStorage validates the StorageConfig
func (c *Config) validateStorage() []ValidationError {
	var errors []ValidationError

	if c.Storage.Root == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.root",
			Value:   c.Storage.Root,
			Message: "must not be empty",
		})
	}

	for field, name := range map[string]string{
		"storage.write_bucket": c.Storage.WriteBucket,
		"storage.read_bucket":  c.Storage.ReadBucket,
	} {
		if !bucketNameRegex.MatchString(name) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: "must start with a lowercase letter or digit and contain only lowercase letters, digits, '.', '-', '_'",
			})
		}
	}

	if c.Storage.WriteBucket != "" && c.Storage.WriteBucket == c.Storage.ReadBucket {
		errors = append(errors, ValidationError{
			Field:   "storage.read_bucket",
			Value:   c.Storage.ReadBucket,
			Message: "must differ from storage.write_bucket",
		})
	}

	if c.Storage.StagingDir == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.staging_dir",
			Value:   c.Storage.StagingDir,
			Message: "must not be empty",
		})
	}

	if c.Storage.MetadataDB == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.metadata_db",
			Value:   c.Storage.MetadataDB,
			Message: "must not be empty",
		})
	}

	if !tableNameRegex.MatchString(c.Storage.TableName) {
		errors = append(errors, ValidationError{
			Field:   "storage.table_name",
			Value:   c.Storage.TableName,
			Message: "must be a plain SQL identifier",
		})
	}

	return errors
}

// validateModel validates the ModelConfig
func (c *Config) validateModel() []ValidationError {
	var errors []ValidationError

	if !strings.HasPrefix(c.Model.Suffix, ".") || len(c.Model.Suffix) < 2 {
		errors = append(errors, ValidationError{
			Field:   "model.suffix",
			Value:   c.Model.Suffix,
			Message: "must be a file extension such as \".fsmodel\"",
		})
	}

	if c.Model.CacheDir == "" {
		errors = append(errors, ValidationError{
			Field:   "model.cache_dir",
			Value:   c.Model.CacheDir,
			Message: "must not be empty",
		})
	}

	errors = append(errors, nonNegative("model.cache_ttl_minutes", c.Model.CacheTTLMinutes)...)

	return errors
}

// validatePipeline validates the PipelineConfig
func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	errors = append(errors, nonNegative("pipeline.format_timeout_seconds", c.Pipeline.FormatTimeoutSeconds)...)
	errors = append(errors, nonNegative("pipeline.lock_timeout_seconds", c.Pipeline.LockTimeoutSeconds)...)

	if !slices.Contains(ValidUploadPolicies(), c.Pipeline.UploadPolicy) {
		errors = append(errors, ValidationError{
			Field:   "pipeline.upload_policy",
			Value:   c.Pipeline.UploadPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidUploadPolicies(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Enabled {
		errors = append(errors, positive("logging.max_size_mb", c.Logging.MaxSizeMB)...)
	}
	errors = append(errors, nonNegative("logging.max_backups", c.Logging.MaxBackups)...)

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	if c.Metrics.Addr != "" && !strings.Contains(c.Metrics.Addr, ":") {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be a host:port listen address",
		}}
	}
	return nil
}

// validateTracing validates the TracingConfig
func (c *Config) validateTracing() []ValidationError {
	var errors []ValidationError

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "tracing.sample_ratio",
			Value:   c.Tracing.SampleRatio,
			Message: "must be between 0 and 1",
		})
	}

	if !c.Tracing.Enabled {
		return errors
	}
	if !strings.Contains(c.Tracing.Endpoint, ":") {
		errors = append(errors, ValidationError{
			Field:   "tracing.endpoint",
			Value:   c.Tracing.Endpoint,
			Message: "must be a host:port collector address",
		})
	}
	if c.Tracing.ServiceName == "" {
		errors = append(errors, ValidationError{
			Field:   "tracing.service_name",
			Value:   c.Tracing.ServiceName,
			Message: "must not be empty when tracing is enabled",
		})
	}

	return errors
}

// validateTrainer validates the TrainerConfig
func (c *Config) validateTrainer() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("trainer.epochs", c.Trainer.Epochs)...)

	if c.Trainer.LearningRate <= 0 {
		errors = append(errors, ValidationError{
			Field:   "trainer.learning_rate",
			Value:   c.Trainer.LearningRate,
			Message: "must be positive",
		})
	}

	return errors
}
