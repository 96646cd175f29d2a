// Package event provides a pub-sub event bus that decouples the pipeline
// orchestrator from its observers (the TUI, the headless runner, the
// trainer watcher).
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Types
//
//   - status.changed: [StatusChangedEvent], the user-visible status text changed
//   - gates.changed: [GatesChangedEvent], a capability was granted or the gates were reset
//   - stage.completed: [StageCompletedEvent], a collaborator operation finished
//   - precondition.rejected: [PreconditionRejectedEvent], an action was triggered while locked
//   - prediction.made: [PredictionMadeEvent], a prediction was classified
//   - model.trained: [ModelTrainedEvent], the trainer deployed a model artifact
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and are protected against
// panics. Publishers must not hold locks that handlers may need.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeStatusChanged, func(e event.Event) {
//	    changed := e.(event.StatusChangedEvent)
//	    fmt.Println(changed.Current)
//	})
//
//	bus.Publish(event.NewStatusChangedEvent("session-1", "Select Action", "Generating Data..."))
package event
