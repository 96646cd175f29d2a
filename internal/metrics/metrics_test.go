package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/foresight/internal/pipeline"
)

var _ pipeline.Recorder = (*Recorder)(nil)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.StageResult("upload", pipeline.OutcomeSuccess)
	r.StageResult("upload", pipeline.OutcomeSuccess)
	r.StageResult("upload", pipeline.OutcomeTimeout)
	r.Rejection("predict")
	r.ModelTrained()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"upload success", testutil.ToFloat64(r.stageResults.WithLabelValues("upload", "success")), 2},
		{"upload timeout", testutil.ToFloat64(r.stageResults.WithLabelValues("upload", "timeout")), 1},
		{"retrieve failure", testutil.ToFloat64(r.stageResults.WithLabelValues("retrieve", "failure")), 0},
		{"predict rejections", testutil.ToFloat64(r.rejections.WithLabelValues("predict")), 1},
		{"models trained", testutil.ToFloat64(r.modelsTrained), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRecorder_Durations(t *testing.T) {
	r := NewRecorder()

	r.CollaboratorDuration("format", 20*time.Millisecond)
	r.CollaboratorDuration("fetch", time.Second)

	if n := testutil.CollectAndCount(r.durations); n != 2 {
		t.Errorf("histogram series = %d, want 2", n)
	}

	expected := `
# HELP foresight_precondition_rejections_total Actions triggered while their capability was locked.
# TYPE foresight_precondition_rejections_total counter
foresight_precondition_rejections_total{capability="upload"} 3
`
	for i := 0; i < 3; i++ {
		r.Rejection("upload")
	}
	if err := testutil.CollectAndCompare(r.rejections, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected rejection metrics: %v", err)
	}
}

func TestServer_ServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.StageResult("generate", pipeline.OutcomeSuccess)

	srv, err := Listen("127.0.0.1:0", r, nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `foresight_stage_results_total{capability="generate",outcome="success"} 1`) {
		t.Errorf("body missing stage result:\n%s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}
