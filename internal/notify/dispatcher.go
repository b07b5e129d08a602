// Package notify consumes committed notification events and fans them out
// to push, SMS and email. Delivery failures are logged and counted but
// never propagate back into the booking flow that emitted the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

type Store interface {
	GetJobByID(ctx context.Context, jobID uuid.UUID) (domain.Job, error)
	GetCustomerByID(ctx context.Context, customerID uuid.UUID) (domain.Customer, error)
	GetTranslatorByID(ctx context.Context, translatorID uuid.UUID) (domain.TranslatorProfile, error)
	LanguageName(ctx context.Context, languageID uuid.UUID) (string, error)
}

// Matcher computes the eligible translator pool for broadcast events.
type Matcher interface {
	PotentialTranslators(ctx context.Context, job *domain.Job) ([]domain.TranslatorProfile, error)
}

// TimePolicy decides push delivery timing per translator.
type TimePolicy interface {
	ShouldSendPush(t *domain.TranslatorProfile) bool
	ShouldDelayPush(t *domain.TranslatorProfile) bool
	NextBusinessMoment() time.Time
}

// MessageTransport is the outbound side. SendPush with a non-nil
// deliverAfter asks the provider to hold delivery until that moment.
type MessageTransport interface {
	SendPush(ctx context.Context, recipients []uuid.UUID, jobID uuid.UUID, notificationType, message string, deliverAfter *time.Time) error
	SendSMS(ctx context.Context, toNumber, message string) error
	SendEmail(ctx context.Context, to, name, subject, template string, data map[string]string) error
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	PushFanout(immediate, delayed int)
	SMSFanout(count int)
	EmailSent(template string)
	NotifyFailure(kind string)
	EventsInFlightIncr()
	EventsInFlightDecr()
}

// Analytics records per-kind delivery counters. Failures are logged and
// never block dispatch.
type Analytics interface {
	Dispatched(ctx context.Context, kind domain.EventKind, at time.Time) error
}

type Dispatcher struct {
	store     Store
	matcher   Matcher
	policy    TimePolicy
	transport MessageTransport
	metrics   MetricsSink // optional, nil = disabled
	analytics Analytics   // optional, nil = disabled
	clock     func() time.Time
}

func New(store Store, matcher Matcher, policy TimePolicy, transport MessageTransport) *Dispatcher {
	return &Dispatcher{
		store:     store,
		matcher:   matcher,
		policy:    policy,
		transport: transport,
		clock:     time.Now,
	}
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// WithAnalytics attaches a delivery counter sink to the dispatcher.
func (d *Dispatcher) WithAnalytics(a Analytics) *Dispatcher {
	d.analytics = a
	return d
}

// Run processes events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.NotificationEvent) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case event := <-ch:
			if err := d.Dispatch(ctx, event); err != nil {
				log.Printf("notify: error: %v", err)
			}
		}
	}
}

// DrainTimeout is the maximum time to wait for buffered events during shutdown.
const DrainTimeout = 30 * time.Second

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.NotificationEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("notify: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("notify: drain complete, processed %d events", count)
				return
			}
			if err := d.Dispatch(drainCtx, event); err != nil {
				log.Printf("notify: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("notify: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Dispatch routes one event to its handler. Lookup failures surface as
// errors; transport failures are swallowed after logging so a flaky
// provider cannot poison the event loop.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.NotificationEvent) error {
	if d.metrics != nil {
		d.metrics.EventsInFlightIncr()
		defer d.metrics.EventsInFlightDecr()
	}
	if d.analytics != nil {
		if err := d.analytics.Dispatched(ctx, ev.Kind, d.clock()); err != nil {
			log.Printf("notify: analytics write failed: %v", err)
		}
	}

	switch ev.Kind {
	case domain.EventJobCreated:
		return d.handleBroadcast(ctx, ev, false)
	case domain.EventJobReopened:
		return d.handleBroadcast(ctx, ev, true)
	case domain.EventJobAccepted:
		return d.handleAccepted(ctx, ev)
	case domain.EventJobCancelled:
		return d.handleCancelled(ctx, ev)
	case domain.EventSessionEnded:
		return d.handleSessionEnded(ctx, ev)
	case domain.EventSessionStartRemind:
		return d.handleSessionStartRemind(ctx, ev)
	case domain.EventTranslatorChanged:
		return d.handleTranslatorChanged(ctx, ev)
	case domain.EventDateChanged:
		return d.handleDateChanged(ctx, ev)
	case domain.EventLanguageChanged:
		return d.handleLanguageChanged(ctx, ev)
	case domain.EventStatusChangedCustomer:
		return d.handleStatusChangedCustomer(ctx, ev)
	case domain.EventBookingConfirmed:
		return d.handleBookingConfirmed(ctx, ev)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// handleBroadcast advertises a pending booking to every eligible
// translator: push to those who allow it, split into an immediate batch
// and a batch held until the next business moment, plus an SMS to each
// candidate. Reopened bookings additionally mail the customer.
func (d *Dispatcher) handleBroadcast(ctx context.Context, ev domain.NotificationEvent, reopened bool) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	language, err := d.store.LanguageName(ctx, ev.Job.FromLanguageID)
	if err != nil {
		return fmt.Errorf("language name: %w", err)
	}
	pool, err := d.matcher.PotentialTranslators(ctx, &job)
	if err != nil {
		return fmt.Errorf("translator pool: %w", err)
	}

	var immediate, delayed []uuid.UUID
	for i := range pool {
		t := &pool[i]
		if t.ID == ev.ExcludeTranslator {
			continue
		}
		if !d.policy.ShouldSendPush(t) {
			continue
		}
		if ev.Job.Immediate && t.NoEmergencyPush {
			continue
		}
		if d.policy.ShouldDelayPush(t) {
			delayed = append(delayed, t.ID)
		} else {
			immediate = append(immediate, t.ID)
		}
	}

	message := newJobPushMessage(language, ev.Job)
	if len(immediate) > 0 {
		if err := d.transport.SendPush(ctx, immediate, ev.Job.JobID, typeSuitableJob, message, nil); err != nil {
			d.failure(ev.Kind, "push", err)
		}
	}
	if len(delayed) > 0 {
		after := d.policy.NextBusinessMoment()
		if err := d.transport.SendPush(ctx, delayed, ev.Job.JobID, typeSuitableJob, message, &after); err != nil {
			d.failure(ev.Kind, "delayed push", err)
		}
	}
	if d.metrics != nil {
		d.metrics.PushFanout(len(immediate), len(delayed))
	}

	sms := smsMessage(ev.Job)
	sent := 0
	for i := range pool {
		t := &pool[i]
		if t.ID == ev.ExcludeTranslator || t.Mobile == "" {
			continue
		}
		if err := d.transport.SendSMS(ctx, t.Mobile, sms); err != nil {
			d.failure(ev.Kind, "sms", err)
			continue
		}
		sent++
	}
	if d.metrics != nil {
		d.metrics.SMSFanout(sent)
	}
	log.Printf("notify: job=%s advertised push_now=%d push_delayed=%d sms=%d", ev.Job.JobID, len(immediate), len(delayed), sent)

	if reopened {
		cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}
		d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name,
			subjectBookingReopened(language, ev.Job), "job-change-status-to-customer", bookingData(ev.Job))
	}
	return nil
}

func (d *Dispatcher) handleAccepted(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	language, err := d.store.LanguageName(ctx, ev.Job.FromLanguageID)
	if err != nil {
		return fmt.Errorf("language name: %w", err)
	}

	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name,
		subjectBookingAccepted(ev.Job), "job-accepted", bookingData(ev.Job))

	msg := acceptedPushMessage(language, ev.Job)
	if err := d.transport.SendPush(ctx, []uuid.UUID{job.CustomerID}, ev.Job.JobID, typeJobAccepted, msg, nil); err != nil {
		d.failure(ev.Kind, "push", err)
	}
	return nil
}

func (d *Dispatcher) handleCancelled(ctx context.Context, ev domain.NotificationEvent) error {
	language, err := d.store.LanguageName(ctx, ev.Job.FromLanguageID)
	if err != nil {
		return fmt.Errorf("language name: %w", err)
	}

	if ev.ByCustomer {
		if len(ev.Recipients) == 0 {
			return nil
		}
		d.pushTargeted(ctx, ev, ev.Recipients, typeJobCancelled, cancelledByCustomerPushMessage(language, ev.Job))
		return nil
	}

	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	msg := cancelledByTranslatorPushMessage(language, ev.Job)
	if err := d.transport.SendPush(ctx, []uuid.UUID{job.CustomerID}, ev.Job.JobID, typeJobCancelled, msg, nil); err != nil {
		d.failure(ev.Kind, "push", err)
	}
	return nil
}

// handleSessionEnded mails the session summary to both parties: the
// customer copy is marked for invoicing, the translator copy for payroll.
func (d *Dispatcher) handleSessionEnded(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}

	data := bookingData(ev.Job)
	data["session_time"] = ev.SessionTime

	custData := cloneData(data)
	custData["for_text"] = "faktura"
	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name,
		subjectSessionEnded(ev.Job), "session-ended", custData)

	for _, id := range ev.Recipients {
		t, err := d.store.GetTranslatorByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get translator: %w", err)
		}
		trData := cloneData(data)
		trData["for_text"] = "lön"
		d.email(ctx, ev, t.Email, t.Name, subjectSessionEnded(ev.Job), "session-ended", trData)
	}
	return nil
}

func (d *Dispatcher) handleSessionStartRemind(ctx context.Context, ev domain.NotificationEvent) error {
	if len(ev.Recipients) == 0 {
		return nil
	}
	language, err := d.store.LanguageName(ctx, ev.Job.FromLanguageID)
	if err != nil {
		return fmt.Errorf("language name: %w", err)
	}
	d.pushTargeted(ctx, ev, ev.Recipients, typeSessionStartRemind, sessionStartRemindMessage(language, ev.Job))
	return nil
}

// pushTargeted delivers a push to named recipients, honoring each
// translator's do-not-disturb settings the same way a broadcast does.
// A recipient with no translator profile is a customer and is always
// delivered immediately.
func (d *Dispatcher) pushTargeted(ctx context.Context, ev domain.NotificationEvent, recipients []uuid.UUID, notificationType, message string) {
	var immediate, delayed []uuid.UUID
	for _, id := range recipients {
		t, err := d.store.GetTranslatorByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				immediate = append(immediate, id)
				continue
			}
			d.failure(ev.Kind, "translator lookup", err)
			continue
		}
		if !d.policy.ShouldSendPush(&t) {
			continue
		}
		if d.policy.ShouldDelayPush(&t) {
			delayed = append(delayed, id)
		} else {
			immediate = append(immediate, id)
		}
	}
	if len(immediate) > 0 {
		if err := d.transport.SendPush(ctx, immediate, ev.Job.JobID, notificationType, message, nil); err != nil {
			d.failure(ev.Kind, "push", err)
		}
	}
	if len(delayed) > 0 {
		after := d.policy.NextBusinessMoment()
		if err := d.transport.SendPush(ctx, delayed, ev.Job.JobID, notificationType, message, &after); err != nil {
			d.failure(ev.Kind, "delayed push", err)
		}
	}
}

func (d *Dispatcher) handleTranslatorChanged(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}

	subject := subjectTranslatorChanged(ev.Job)
	data := bookingData(ev.Job)

	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name, subject, "job-changed-translator-customer", data)

	if ev.OldTranslatorID != uuid.Nil {
		old, err := d.store.GetTranslatorByID(ctx, ev.OldTranslatorID)
		if err != nil {
			return fmt.Errorf("get old translator: %w", err)
		}
		d.email(ctx, ev, old.Email, old.Name, subject, "job-changed-translator-old-translator", data)
	}

	next, err := d.store.GetTranslatorByID(ctx, ev.NewTranslatorID)
	if err != nil {
		return fmt.Errorf("get new translator: %w", err)
	}
	d.email(ctx, ev, next.Email, next.Name, subject, "job-changed-translator-new-translator", data)
	return nil
}

func (d *Dispatcher) handleDateChanged(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}

	subject := subjectBookingChanged(ev.Job)
	data := bookingData(ev.Job)
	data["old_time"] = ev.OldDue.Format("2006-01-02 15:04:05")

	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name, subject, "job-changed-date", data)

	for _, id := range ev.Recipients {
		t, err := d.store.GetTranslatorByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get translator: %w", err)
		}
		d.email(ctx, ev, t.Email, t.Name, subject, "job-changed-date", data)
	}
	return nil
}

func (d *Dispatcher) handleLanguageChanged(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	oldLanguage, err := d.store.LanguageName(ctx, ev.OldLanguageID)
	if err != nil {
		return fmt.Errorf("language name: %w", err)
	}

	subject := subjectBookingChanged(ev.Job)
	data := bookingData(ev.Job)
	data["old_lang"] = oldLanguage

	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name, subject, "job-changed-lang", data)

	// The translator copy reuses the date-change template, matching the
	// historical correspondence.
	for _, id := range ev.Recipients {
		t, err := d.store.GetTranslatorByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get translator: %w", err)
		}
		d.email(ctx, ev, t.Email, t.Name, subject, "job-changed-date", data)
	}
	return nil
}

func (d *Dispatcher) handleStatusChangedCustomer(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name,
		subjectBookingCancelled(ev.Job), "status-changed-from-pending-or-assigned-customer", bookingData(ev.Job))
	return nil
}

func (d *Dispatcher) handleBookingConfirmed(ctx context.Context, ev domain.NotificationEvent) error {
	job, err := d.store.GetJobByID(ctx, ev.Job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	cust, err := d.store.GetCustomerByID(ctx, job.CustomerID)
	if err != nil {
		return fmt.Errorf("get customer: %w", err)
	}
	d.email(ctx, ev, customerEmail(ev.Job, cust), cust.Name,
		subjectBookingReceived(ev.Job), "job-created", bookingData(ev.Job))
	return nil
}

// email sends one message and records the outcome. A failed send is a
// logged metric, never an error.
func (d *Dispatcher) email(ctx context.Context, ev domain.NotificationEvent, to, name, subject, template string, data map[string]string) {
	if to == "" {
		log.Printf("notify: job=%s no email address for template %s", ev.Job.JobID, template)
		return
	}
	if err := d.transport.SendEmail(ctx, to, name, subject, template, data); err != nil {
		d.failure(ev.Kind, "email "+template, err)
		return
	}
	if d.metrics != nil {
		d.metrics.EmailSent(template)
	}
}

func (d *Dispatcher) failure(kind domain.EventKind, channel string, err error) {
	log.Printf("notify: %s: %s failed: %v", kind, channel, err)
	if d.metrics != nil {
		d.metrics.NotifyFailure(string(kind))
	}
}

// customerEmail prefers the per-booking override address.
func customerEmail(s domain.Snapshot, cust domain.Customer) string {
	if s.OverrideEmail != "" {
		return s.OverrideEmail
	}
	return cust.Email
}

func bookingData(s domain.Snapshot) map[string]string {
	return map[string]string{
		"job_id":   s.JobID.String(),
		"due_date": s.DueDate,
		"due_time": s.DueTime,
		"duration": convertToHoursMins(s.Duration),
	}
}

func cloneData(data map[string]string) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
