package metrics

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TransitionApplied(from, to string)  {}
func (n *NoopSink) TransitionRejected(from, to string) {}
func (n *NoopSink) AcceptSucceeded()                   {}
func (n *NoopSink) AcceptRejected(reason string)       {}
func (n *NoopSink) PushFanout(immediate, delayed int)  {}
func (n *NoopSink) SMSFanout(count int)                {}
func (n *NoopSink) EmailSent(template string)          {}
func (n *NoopSink) NotifyFailure(kind string)          {}
func (n *NoopSink) EventsInFlightIncr()                {}
func (n *NoopSink) EventsInFlightDecr()                {}
func (n *NoopSink) BufferSizeUpdate(size int)          {}
func (n *NoopSink) EmitError()                         {}
func (n *NoopSink) JobsExpired(count int)              {}
func (n *NoopSink) RemindersSent(count int)            {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)  {}
