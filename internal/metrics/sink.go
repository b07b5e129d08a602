package metrics

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable,
// implementations log warnings and continue.
type Sink interface {
	// Lifecycle metrics
	TransitionApplied(from, to string)
	TransitionRejected(from, to string)

	// Assignment metrics
	AcceptSucceeded()
	AcceptRejected(reason string)

	// Dispatcher metrics
	PushFanout(immediate, delayed int)
	SMSFanout(count int)
	EmailSent(template string)
	NotifyFailure(kind string)
	EventsInFlightIncr()
	EventsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	EmitError()

	// Sweeper metrics
	JobsExpired(count int)
	RemindersSent(count int)

	// Leader election metrics
	LeaderStatusChanged(isLeader bool)
}

// Reject reasons for AcceptRejected.
const (
	RejectAlreadyBooked = "already_booked"
	RejectNotPending    = "not_pending"
)
