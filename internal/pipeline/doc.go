// Package pipeline implements the stage-gated controller behind foresight's
// four-step workflow: generate synthetic data, upload it, retrieve a trained
// model and predict with it.
//
// # Capability Gates
//
// Each action requires a [Capability]. The [Orchestrator] owns a [GateSet]
// that starts as {GENERATE} and only grows:
//
//	GENERATE ─generate─► UPLOAD ─format─► RETRIEVE ─fetch+compile─► PREDICT
//
// [Orchestrator.Reset] is the only way to shrink the set, back to {GENERATE}.
// Reset does not clear generated data or the retrieved model.
//
// An action triggered while its capability is locked returns a
// [errors.PreconditionError]. Nothing changes: not the gates, not the status
// text, not the stored data. The rejection is logged at WARN and published as
// a precondition.rejected event.
//
// # Asynchronous Stages
//
// Upload blocks its caller on the format step, bounded by the configured
// format timeout. A zero timeout waits forever, which hangs the caller if the
// storage never answers. After formatting, RETRIEVE is granted immediately and
// the blob and metadata uploads run in the background. With [UploadRace] each
// upload writes its own status when it finishes, so the last one to finish
// wins. With [UploadJoined] a single combined status is written once both are
// done.
//
// Retrieve also runs in the background. [Orchestrator.Drain] waits for every
// background operation started so far.
//
// Completions that arrive after a Reset are discarded.
//
// # Observing State
//
// Status and gate changes are published on the [event.Bus] after the
// orchestrator's lock is released, so handlers may call back into the
// orchestrator.
package pipeline
