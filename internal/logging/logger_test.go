package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func readEntries(t *testing.T, content []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line is not valid JSON: %v: %q", err, line)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("writes log file in directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")

		logger, err := NewLogger(Options{Dir: dir, Level: LevelDebug})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		logPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(logPath); err != nil {
			t.Errorf("log file was not created at %s: %v", logPath, err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger(Options{Level: LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.output.closer != nil {
			t.Error("expected no closer when dir is empty")
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines (WARN and ERROR only), got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelInfo)

	logger.WithSession("session-123").WithStage("upload").Info("test message", "extra", "data")

	entries := readEntries(t, buf.Bytes())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]

	want := map[string]string{
		"session_id": "session-123",
		"stage":      "upload",
		"extra":      "data",
		"msg":        "test message",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("expected %s=%s, got %v", k, v, entry[k])
		}
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelInfo)

	if logger.With() != logger {
		t.Error("With() with no args should return the receiver")
	}

	logger.With("foo", "bar", "count", 42, 7, "ignored").Info("test message")

	entry := readEntries(t, buf.Bytes())[0]
	if entry["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", entry["foo"])
	}
	// JSON numbers are float64
	if entry["count"] != float64(42) {
		t.Errorf("expected count=42, got %v", entry["count"])
	}
}

func TestChildDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelInfo)

	_ = logger.WithStage("predict")
	logger.Info("parent")

	entry := readEntries(t, buf.Bytes())[0]
	if _, ok := entry["stage"]; ok {
		t.Error("parent logger should not carry child attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if err := logger.Close(); err != nil {
		t.Errorf("NopLogger.Close() returned error: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DEBUG", LevelDebug},
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"ERROR", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(Options{Dir: dir, Level: LevelInfo})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithSession("s1")
	child.Info("test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := child.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if len(content) == 0 {
		t.Error("log file is empty, expected content")
	}
}

type countingCloser struct {
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestClose_SharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, LevelInfo)
	closer := &countingCloser{}
	logger.output.closer = closer

	session := logger.WithSession("s1")
	stage := session.WithStage("upload")

	for _, l := range []*Logger{logger, stage, session} {
		if err := l.Close(); err != nil {
			t.Fatalf("Close() returned error: %v", err)
		}
	}
	if closer.closes != 1 {
		t.Errorf("closer called %d times, want 1", closer.closes)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(Options{Dir: dir, Level: LevelInfo, MaxSizeMB: 50})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				logger.WithStage("upload").Info("concurrent write", "goroutine", n, "iteration", j)
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	if got := len(readEntries(t, content)); got != 1000 {
		t.Errorf("expected 1000 log lines, got %d", got)
	}
}
