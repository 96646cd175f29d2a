package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "status.changed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeStatusChanged        = "status.changed"
	TypeGatesChanged         = "gates.changed"
	TypeStageCompleted       = "stage.completed"
	TypePreconditionRejected = "precondition.rejected"
	TypePredictionMade       = "prediction.made"
	TypeModelTrained         = "model.trained"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Pipeline State Events
// -----------------------------------------------------------------------------

// StatusChangedEvent is emitted whenever the user-visible status text changes.
//
// Seq orders state events from one orchestrator: it is assigned when the
// change is applied, while delivery may happen later and out of order. A sink
// keeps the event with the highest Seq. Zero means unordered.
type StatusChangedEvent struct {
	baseEvent
	SessionID string
	Previous  string
	Current   string
	Seq       uint64
}

// NewStatusChangedEvent creates a StatusChangedEvent.
func NewStatusChangedEvent(sessionID, previous, current string) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBaseEvent(TypeStatusChanged),
		SessionID: sessionID,
		Previous:  previous,
		Current:   current,
	}
}

// GatesChangedEvent is emitted when a capability is granted or the gate set
// is reset. Unlocked holds the full set after the change, in pipeline order.
// Seq follows the same rules as StatusChangedEvent.Seq.
type GatesChangedEvent struct {
	baseEvent
	Unlocked []string
	Granted  string // Empty on reset
	Reset    bool
	Seq      uint64
}

// NewGatesChangedEvent creates a GatesChangedEvent.
func NewGatesChangedEvent(unlocked []string, granted string, reset bool) GatesChangedEvent {
	return GatesChangedEvent{
		baseEvent: newBaseEvent(TypeGatesChanged),
		Unlocked:  unlocked,
		Granted:   granted,
		Reset:     reset,
	}
}

// -----------------------------------------------------------------------------
// Stage Events
// -----------------------------------------------------------------------------

// StageCompletedEvent is emitted when a collaborator operation finishes.
type StageCompletedEvent struct {
	baseEvent
	Stage     string // Capability that issued the operation
	Operation string // e.g. "format", "upload_blob", "fetch"
	Success   bool
	Err       string
	Duration  time.Duration
}

// NewStageCompletedEvent creates a StageCompletedEvent.
func NewStageCompletedEvent(stage, operation string, err error, duration time.Duration) StageCompletedEvent {
	e := StageCompletedEvent{
		baseEvent: newBaseEvent(TypeStageCompleted),
		Stage:     stage,
		Operation: operation,
		Success:   err == nil,
		Duration:  duration,
	}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// PreconditionRejectedEvent is emitted when an action is triggered while its
// capability is locked.
type PreconditionRejectedEvent struct {
	baseEvent
	Capability string
	Reason     string
}

// NewPreconditionRejectedEvent creates a PreconditionRejectedEvent.
func NewPreconditionRejectedEvent(capability, reason string) PreconditionRejectedEvent {
	return PreconditionRejectedEvent{
		baseEvent:  newBaseEvent(TypePreconditionRejected),
		Capability: capability,
		Reason:     reason,
	}
}

// PredictionMadeEvent carries a classified model output.
type PredictionMadeEvent struct {
	baseEvent
	Vector []float64
	Label  string
}

// NewPredictionMadeEvent creates a PredictionMadeEvent.
func NewPredictionMadeEvent(vector []float64, label string) PredictionMadeEvent {
	return PredictionMadeEvent{
		baseEvent: newBaseEvent(TypePredictionMade),
		Vector:    vector,
		Label:     label,
	}
}

// -----------------------------------------------------------------------------
// Trainer Events
// -----------------------------------------------------------------------------

// ModelTrainedEvent is emitted when the trainer writes a model artifact to
// the read bucket.
type ModelTrainedEvent struct {
	baseEvent
	SessionID  string
	RemoteName string
	Samples    int
	Loss       float64
}

// NewModelTrainedEvent creates a ModelTrainedEvent.
func NewModelTrainedEvent(sessionID, remoteName string, samples int, loss float64) ModelTrainedEvent {
	return ModelTrainedEvent{
		baseEvent:  newBaseEvent(TypeModelTrained),
		SessionID:  sessionID,
		RemoteName: remoteName,
		Samples:    samples,
		Loss:       loss,
	}
}
