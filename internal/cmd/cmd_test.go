package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/errors"
	"github.com/Iron-Ham/foresight/internal/event"
	"github.com/Iron-Ham/foresight/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Logging.Enabled = false
	cfg.Dataset.Seed = 7
	cfg.Session.ID = "test-session"
	return cfg
}

func testEnvironment(t *testing.T, cfg *config.Config) *environment {
	t.Helper()
	env, err := newEnvironment(cfg)
	if err != nil {
		t.Fatalf("newEnvironment() error = %v", err)
	}
	t.Cleanup(func() {
		if err := env.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return env
}

// testCommand returns a command whose output is captured in buf.
func testCommand() (*cobra.Command, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	c := &cobra.Command{}
	c.SetOut(buf)
	c.SetErr(buf)
	c.SetContext(context.Background())
	return c, buf
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "foresight" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "foresight")
	}

	// Compare by Name(), not Use which includes args
	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range []string{"demo", "run", "train", "schema", "config"} {
		if !cmdMap[name] {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

func TestRunSession_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	env := testEnvironment(t, cfg)
	c, buf := testCommand()

	if err := runSession(c, env, true); err != nil {
		t.Fatalf("runSession() error = %v\noutput:\n%s", err, buf)
	}

	out := buf.String()
	for _, want := range []string{
		pipeline.StatusGenerated,
		pipeline.StatusRetrieved,
		"trained test-session_model0.fsmodel",
		pipeline.PredictionStatus(pipeline.LabelFirst),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	recs, err := env.records.List(context.Background(), "test-session")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}
}

func TestRunSession_WithoutTrainerFailsRetrieve(t *testing.T) {
	cfg := testConfig(t)
	env := testEnvironment(t, cfg)
	c, buf := testCommand()

	err := runSession(c, env, false)
	if err == nil {
		t.Fatal("runSession() should fail when no model is deployed")
	}
	if !strings.Contains(buf.String(), pipeline.StatusErrorRetrieving) {
		t.Errorf("output missing %q:\n%s", pipeline.StatusErrorRetrieving, buf)
	}
}

func TestRunSession_JoinedPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.UploadPolicy = config.UploadPolicyJoined
	env := testEnvironment(t, cfg)
	c, buf := testCommand()

	if err := runSession(c, env, true); err != nil {
		t.Fatalf("runSession() error = %v\noutput:\n%s", err, buf)
	}
	if !strings.Contains(buf.String(), pipeline.StatusUploaded+"\n") {
		t.Errorf("joined policy should report %q:\n%s", pipeline.StatusUploaded, buf)
	}
}

func TestEnvironment_RedeployInvalidatesCache(t *testing.T) {
	cfg := testConfig(t)
	env := testEnvironment(t, cfg)
	c, buf := testCommand()

	if err := runSession(c, env, true); err != nil {
		t.Fatalf("runSession() error = %v\noutput:\n%s", err, buf)
	}
	name := "test-session_model0.fsmodel"
	if _, ok := env.models.Cached(name); !ok {
		t.Fatalf("model %s should be cached after retrieve", name)
	}

	if _, err := env.trainer.Train(context.Background(), "test-session"); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if _, ok := env.models.Cached(name); ok {
		t.Error("redeploying should evict the cached handle")
	}
}

func TestSchemaCommand(t *testing.T) {
	c, buf := testCommand()
	if err := schemaCmd.RunE(c, nil); err != nil {
		t.Fatalf("schema error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
	if doc["title"] != "foresight staged dataset" {
		t.Errorf("title = %v", doc["title"])
	}
}

func TestConfigShow(t *testing.T) {
	config.SetDefaults()
	c, buf := testCommand()
	if err := runConfigShow(c, nil); err != nil {
		t.Fatalf("runConfigShow() error = %v", err)
	}

	var got config.Config
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf)
	}
	if got.Pipeline.UploadPolicy != config.UploadPolicyRace {
		t.Errorf("upload_policy = %q, want %q", got.Pipeline.UploadPolicy, config.UploadPolicyRace)
	}
	if got.Storage.TableName != "records" {
		t.Errorf("table_name = %q", got.Storage.TableName)
	}
}

func TestRunTrain_RequiresSessionOrWatch(t *testing.T) {
	c, _ := testCommand()
	trainWatch = false
	if err := runTrain(c, nil); err == nil {
		t.Error("runTrain() without a session id or --watch should fail")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"rejected action", errors.NewPreconditionError("predict", "No model for prediction."), ExitRejected},
		{"invalid input", errors.NewValidationError("must be positive"), ExitRejected},
		{"format wait gave up", errors.Wrap(errors.NewLivenessError("format", time.Second), "upload"), ExitStalled},
		{"collaborator failure", errors.NewCollaboratorError("fetch", errors.ErrNoModel), ExitFailure},
		{"plain error", fmt.Errorf("no score above 0.5: %w", errors.ErrInvalidPrediction), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestEventPrinter_SkipsOvertakenStatus(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf}

	newest := event.NewStatusChangedEvent("s", pipeline.StatusUploadedBlob, pipeline.StatusUploadedMetadata)
	newest.Seq = 5
	overtaken := event.NewStatusChangedEvent("s", pipeline.StatusUploading, pipeline.StatusUploadedBlob)
	overtaken.Seq = 4

	p.print(newest)
	p.print(overtaken)

	out := buf.String()
	if !strings.Contains(out, pipeline.StatusUploadedMetadata) {
		t.Errorf("output missing %q:\n%s", pipeline.StatusUploadedMetadata, out)
	}
	if strings.Contains(out, pipeline.StatusUploadedBlob) {
		t.Errorf("overtaken status %q was printed:\n%s", pipeline.StatusUploadedBlob, out)
	}
}
