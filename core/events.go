package core

import (
	"time"
)

// EventKind identifies the type of event emitted by the decision core.
type EventKind string

const (
	// EventExecutionRecorded is emitted after an execution outcome is
	// appended to a key's history.
	EventExecutionRecorded EventKind = "execution.recorded"

	// EventExecutionOrphaned is emitted when an outcome is appended for a
	// key with no registered manifest, so no rescoring was triggered.
	EventExecutionOrphaned EventKind = "execution.orphaned"

	// EventScoreComputed is emitted after a consensus score is computed.
	EventScoreComputed EventKind = "score.computed"

	// EventVariantActivated is emitted when the optimizer marks a variant
	// as the surviving active member of its cluster.
	EventVariantActivated EventKind = "variant.activated"

	// EventVariantRetired is emitted when the optimizer retires a
	// redundant variant.
	EventVariantRetired EventKind = "variant.retired"

	// EventOptimizePassStarted is emitted when an optimizer pass begins.
	EventOptimizePassStarted EventKind = "optimize.pass_started"

	// EventOptimizePassFinished is emitted when an optimizer pass
	// completes, converged or not.
	EventOptimizePassFinished EventKind = "optimize.pass_finished"

	// EventInitAttempt is emitted before each store initialization attempt.
	EventInitAttempt EventKind = "init.attempt"

	// EventInitBackoff is emitted when initialization enters a backoff
	// wait after a recoverable failure.
	EventInitBackoff EventKind = "init.backoff"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what the decision core did. Events
// should stay small; bulk data belongs in the store.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// Key is the (tool, version) the event concerns, when applicable.
	Key ToolKey

	// VariantID is set for variant lifecycle events.
	VariantID string

	// PassID identifies one optimizer pass or initialization sequence.
	PassID string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration of the completed operation, when applicable.
	Elapsed time.Duration

	// Err carries the failure for error events (may be nil).
	Err error

	// Payload holds small event-specific values (attempt numbers,
	// transition counts, combined weights).
	Payload map[string]any
}

// EventHandler receives core events. Handlers must be fast and must not
// block; slow consumers should buffer internally.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
