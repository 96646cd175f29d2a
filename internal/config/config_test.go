package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Dataset.NumFeatures != 5 {
		t.Errorf("Dataset.NumFeatures = %d, want 5", cfg.Dataset.NumFeatures)
	}
	if cfg.Dataset.FeatureLength != 50 {
		t.Errorf("Dataset.FeatureLength = %d, want 50", cfg.Dataset.FeatureLength)
	}
	if cfg.Dataset.TargetLength != 3 {
		t.Errorf("Dataset.TargetLength = %d, want 3", cfg.Dataset.TargetLength)
	}
	if cfg.Model.Suffix != ".fsmodel" {
		t.Errorf("Model.Suffix = %q, want %q", cfg.Model.Suffix, ".fsmodel")
	}
	if !cfg.Model.UseAccelerator {
		t.Error("Model.UseAccelerator should be true by default")
	}
	if cfg.Pipeline.UploadPolicy != UploadPolicyRace {
		t.Errorf("Pipeline.UploadPolicy = %q, want %q", cfg.Pipeline.UploadPolicy, UploadPolicyRace)
	}
	if cfg.Pipeline.FormatTimeout() != 30*time.Second {
		t.Errorf("Pipeline.FormatTimeout() = %v, want 30s", cfg.Pipeline.FormatTimeout())
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should be valid, got %v", ValidationErrors(errs))
	}
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"format timeout", (&PipelineConfig{FormatTimeoutSeconds: 2}).FormatTimeout(), 2 * time.Second},
		{"unbounded format", (&PipelineConfig{}).FormatTimeout(), 0},
		{"lock timeout", (&PipelineConfig{LockTimeoutSeconds: 5}).LockTimeout(), 5 * time.Second},
		{"cache ttl", (&ModelConfig{CacheTTLMinutes: 60}).CacheTTL(), time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestStorageConfig_Resolve(t *testing.T) {
	s := StorageConfig{Root: "/data/foresight"}

	if got := s.Resolve("staging"); got != filepath.Join("/data/foresight", "staging") {
		t.Errorf("Resolve(relative) = %q", got)
	}
	if got := s.Resolve("/abs/models"); got != "/abs/models" {
		t.Errorf("Resolve(absolute) = %q", got)
	}
}

func TestConfig_LogDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Root = "/tmp/fs"

	if got := cfg.LogDir(); got != filepath.Join("/tmp/fs", "logs") {
		t.Errorf("LogDir() = %q", got)
	}

	cfg.Logging.Dir = "-"
	if got := cfg.LogDir(); got != "" {
		t.Errorf("LogDir() with \"-\" = %q, want stderr (empty)", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := ConfigDir(), "/custom/config/foresight"; got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
		if got, want := ConfigFile(), "/custom/config/foresight/config.yaml"; got != want {
			t.Errorf("ConfigFile() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		got := ConfigDir()
		if filepath.Base(got) != "foresight" && got != ".foresight" {
			t.Errorf("ConfigDir() = %q, want a foresight directory", got)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	SetDefaults()
	viper.Set("dataset.num_features", 7)
	viper.Set("pipeline.upload_policy", "joined")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dataset.NumFeatures != 7 {
		t.Errorf("Dataset.NumFeatures = %d, want 7", cfg.Dataset.NumFeatures)
	}
	if cfg.Pipeline.UploadPolicy != UploadPolicyJoined {
		t.Errorf("Pipeline.UploadPolicy = %q, want joined", cfg.Pipeline.UploadPolicy)
	}
	if cfg.Dataset.FeatureLength != 50 {
		t.Errorf("unset keys should keep defaults, FeatureLength = %d", cfg.Dataset.FeatureLength)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Reset()
	SetDefaults()
	viper.Set("pipeline.upload_policy", "eventual")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an unknown upload policy")
	} else if _, ok := err.(ValidationErrors); !ok {
		t.Errorf("Load() error type = %T, want ValidationErrors", err)
	}

	// Get falls back to defaults.
	if got := Get().Pipeline.UploadPolicy; got != UploadPolicyRace {
		t.Errorf("Get() fallback upload policy = %q", got)
	}
}
