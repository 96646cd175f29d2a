package asyncjoin

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/foresight/internal/errors"
)

func TestAwait_ReturnsResult(t *testing.T) {
	got, err := Await(context.Background(), "format", time.Second, func(ctx context.Context) (string, error) {
		return "staging/x.json", nil
	})
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != "staging/x.json" {
		t.Errorf("Await() = %q", got)
	}
}

func TestAwait_ReturnsOperationError(t *testing.T) {
	want := errors.New("disk full")
	_, err := Await(context.Background(), "format", 0, func(ctx context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("Await() error = %v, want %v", err, want)
	}
}

func TestAwait_TimeoutIsLivenessError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Await(context.Background(), "format", 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})

	var liveness *errors.LivenessError
	if !errors.As(err, &liveness) {
		t.Fatalf("Await() error = %v, want LivenessError", err)
	}
	if liveness.Operation != "format" || liveness.Waited != 20*time.Millisecond {
		t.Errorf("LivenessError = %+v", liveness)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Await() returned after %v, want close to the bound", elapsed)
	}
}

func TestAwait_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Await(ctx, "format", 0, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Await() error = %v, want context.Canceled", err)
	}
}

func TestAwait_PanicBecomesError(t *testing.T) {
	_, err := Await(context.Background(), "format", time.Second, func(context.Context) (int, error) {
		panic("nil location")
	})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("Await() error = %v, want a panic error", err)
	}
}

func TestGroup_ReportsEachCompletion(t *testing.T) {
	var (
		mu      sync.Mutex
		reports []string
	)
	record := func(name string) func(error) {
		return func(err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				reports = append(reports, name+":"+err.Error())
				return
			}
			reports = append(reports, name+":ok")
		}
	}

	var g Group
	g.Go(context.Background(), func(context.Context) error { return nil }, record("blob"))
	g.Go(context.Background(), func(context.Context) error { return errors.New("denied") }, record("metadata"))
	g.Go(context.Background(), func(context.Context) error { panic("boom") }, record("panicky"))

	if err := g.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3: %v", len(reports), reports)
	}
	joined := strings.Join(reports, ",")
	for _, want := range []string{"blob:ok", "metadata:denied", "panicky:operation panicked"} {
		if !strings.Contains(joined, want) {
			t.Errorf("reports %v missing %q", reports, want)
		}
	}
}

func TestGroup_ReportPanicRecovered(t *testing.T) {
	var g Group
	g.Go(context.Background(), func(context.Context) error { return nil }, func(error) {
		panic("report failed")
	})
	if err := g.Wait(); err == nil {
		t.Error("Wait() should return the report panic as an error")
	}
}

func TestJoinAll(t *testing.T) {
	fail := errors.New("insert failed")
	errs := JoinAll(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error { return fail },
		func(context.Context) error { panic("bad") },
	)

	if len(errs) != 3 {
		t.Fatalf("JoinAll() returned %d slots, want 3", len(errs))
	}
	if errs[0] != nil {
		t.Errorf("slot 0 = %v, want nil", errs[0])
	}
	if !errors.Is(errs[1], fail) {
		t.Errorf("slot 1 = %v, want %v", errs[1], fail)
	}
	if errs[2] == nil {
		t.Error("slot 2 should carry the recovered panic")
	}

	if i, err := FirstError(errs); i != 1 || !errors.Is(err, fail) {
		t.Errorf("FirstError() = %d, %v", i, err)
	}
	if i, err := FirstError([]error{nil, nil}); i != -1 || err != nil {
		t.Errorf("FirstError(all nil) = %d, %v", i, err)
	}
}

func TestJoinAll_WaitsForSlowest(t *testing.T) {
	finished := false

	JoinAll(context.Background(),
		func(context.Context) error { return nil },
		func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			finished = true
			return nil
		},
	)

	if !finished {
		t.Error("JoinAll returned before every op finished")
	}
}
