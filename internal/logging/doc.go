// Package logging provides structured logging for foresight.
//
// It wraps Go's log/slog with a JSON handler. File output is rotated by size
// through lumberjack; an empty directory sends logs to stderr.
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	logger := logging.NewLogger(logging.Options{Dir: dir, Level: "INFO"})
//	defer logger.Close()
//
//	stageLogger := logger.WithSession(sessionID).WithStage("upload")
//	stageLogger.Info("blob uploaded", "location", loc)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"blob uploaded","session_id":"...","stage":"upload","location":"..."}
//
// Rejected pipeline actions are logged at WARN. They are the operator
// channel for precondition failures and never reach the status line.
package logging
