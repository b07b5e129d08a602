package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Lifecycle metrics
	transitionsTotal         *prometheus.CounterVec
	transitionsRejectedTotal *prometheus.CounterVec

	// Assignment metrics
	acceptsTotal         prometheus.Counter
	acceptsRejectedTotal *prometheus.CounterVec

	// Dispatcher metrics
	pushesTotal      *prometheus.CounterVec
	smsTotal         prometheus.Counter
	emailsTotal      *prometheus.CounterVec
	notifyFailsTotal *prometheus.CounterVec
	eventsInFlight   prometheus.Gauge

	// EventBus metrics
	bufferSize      prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Sweeper metrics
	expiredTotal   prometheus.Counter
	remindersTotal prometheus.Counter

	// Leader election metrics
	leaderStatus prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initLifecycleMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initBackgroundMetrics(reg)
	return s
}

func (s *PrometheusSink) initLifecycleMetrics(reg prometheus.Registerer) {
	s.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_lifecycle_transitions_total",
		Help: "Total number of applied status transitions.",
	}, []string{"from", "to"})
	s.transitionsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_lifecycle_transitions_rejected_total",
		Help: "Total number of rejected status transitions.",
	}, []string{"from", "to"})
	s.acceptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookingd_assignment_accepts_total",
		Help: "Total number of successful translator accepts.",
	})
	s.acceptsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_assignment_accepts_rejected_total",
		Help: "Total number of rejected accepts (races lost, collisions).",
	}, []string{"reason"})

	s.register(reg, s.transitionsTotal, "bookingd_lifecycle_transitions_total")
	s.register(reg, s.transitionsRejectedTotal, "bookingd_lifecycle_transitions_rejected_total")
	s.register(reg, s.acceptsTotal, "bookingd_assignment_accepts_total")
	s.register(reg, s.acceptsRejectedTotal, "bookingd_assignment_accepts_rejected_total")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.pushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_dispatcher_pushes_total",
		Help: "Total number of push recipients notified.",
	}, []string{"delivery"})
	s.smsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookingd_dispatcher_sms_total",
		Help: "Total number of SMS messages sent.",
	})
	s.emailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_dispatcher_emails_total",
		Help: "Total number of emails sent per template.",
	}, []string{"template"})
	s.notifyFailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bookingd_dispatcher_failures_total",
		Help: "Total number of notification failures per event kind.",
	}, []string{"kind"})
	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookingd_dispatcher_events_in_flight",
		Help: "Number of notification events currently being processed.",
	})
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookingd_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookingd_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.pushesTotal, "bookingd_dispatcher_pushes_total")
	s.register(reg, s.smsTotal, "bookingd_dispatcher_sms_total")
	s.register(reg, s.emailsTotal, "bookingd_dispatcher_emails_total")
	s.register(reg, s.notifyFailsTotal, "bookingd_dispatcher_failures_total")
	s.register(reg, s.eventsInFlight, "bookingd_dispatcher_events_in_flight")
	s.register(reg, s.bufferSize, "bookingd_eventbus_buffer_size")
	s.register(reg, s.emitErrorsTotal, "bookingd_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initBackgroundMetrics(reg prometheus.Registerer) {
	s.expiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookingd_sweeper_jobs_expired_total",
		Help: "Total number of pending jobs moved to timedout.",
	})
	s.remindersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookingd_sweeper_reminders_total",
		Help: "Total number of session-start reminders emitted.",
	})
	s.leaderStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookingd_leader_status",
		Help: "1 if this instance is the sweep leader, 0 otherwise.",
	})

	s.register(reg, s.expiredTotal, "bookingd_sweeper_jobs_expired_total")
	s.register(reg, s.remindersTotal, "bookingd_sweeper_reminders_total")
	s.register(reg, s.leaderStatus, "bookingd_leader_status")
}

// register attempts to register a collector, logging any errors without
// propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) TransitionApplied(from, to string) {
	s.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (s *PrometheusSink) TransitionRejected(from, to string) {
	s.transitionsRejectedTotal.WithLabelValues(from, to).Inc()
}

func (s *PrometheusSink) AcceptSucceeded() {
	s.acceptsTotal.Inc()
}

func (s *PrometheusSink) AcceptRejected(reason string) {
	s.acceptsRejectedTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) PushFanout(immediate, delayed int) {
	s.pushesTotal.WithLabelValues("immediate").Add(float64(immediate))
	s.pushesTotal.WithLabelValues("delayed").Add(float64(delayed))
}

func (s *PrometheusSink) SMSFanout(count int) {
	s.smsTotal.Add(float64(count))
}

func (s *PrometheusSink) EmailSent(template string) {
	s.emailsTotal.WithLabelValues(template).Inc()
}

func (s *PrometheusSink) NotifyFailure(kind string) {
	s.notifyFailsTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

func (s *PrometheusSink) JobsExpired(count int) {
	s.expiredTotal.Add(float64(count))
}

func (s *PrometheusSink) RemindersSent(count int) {
	s.remindersTotal.Add(float64(count))
}

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	if isLeader {
		s.leaderStatus.Set(1)
	} else {
		s.leaderStatus.Set(0)
	}
}

var _ Sink = (*PrometheusSink)(nil)
var _ Sink = (*NoopSink)(nil)
