// Package assignment manages the link between bookings and translators:
// the race-guarded accept, reassignment, cancellation from either side
// and reopening of expired bookings. The accept path never trusts an
// earlier status read; the storage-level conditional write is the only
// arbiter of who got the booking.
package assignment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
	"github.com/tolkly/bookingd/internal/lifecycle"
)

type Store interface {
	GetJobByID(ctx context.Context, jobID uuid.UUID) (domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	SaveJob(ctx context.Context, job *domain.Job) error

	GetTranslatorByEmail(ctx context.Context, email string) (domain.TranslatorProfile, error)

	// CompareAndSwapStatus flips the status only if the stored value still
	// matches expected. It reports whether the write took effect; false
	// means another caller moved the job first.
	CompareAndSwapStatus(ctx context.Context, jobID uuid.UUID, expected, next domain.Status) (bool, error)

	CreateAssignment(ctx context.Context, a *domain.Assignment) error
	CloseAssignment(ctx context.Context, assignmentID uuid.UUID, at time.Time) error
	ActiveAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error)

	// TranslatorBusyAt reports whether the translator already holds an
	// active assignment for a booking due at the same minute.
	TranslatorBusyAt(ctx context.Context, translatorID uuid.UUID, due time.Time) (bool, error)
}

// Emitter hands committed events to the notification pipeline.
type Emitter interface {
	Emit(ctx context.Context, ev domain.NotificationEvent) error
}

// ExpiryPolicy derives will_expire_at when a booking re-enters the pool.
type ExpiryPolicy interface {
	ComputeExpiry(due, createdAt time.Time) time.Time
}

// MetricsSink defines the interface for recording assignment metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	AcceptSucceeded()
	AcceptRejected(reason string)
}

const (
	rejectAlreadyBooked = "already_booked"
	rejectNotPending    = "not_pending"
)

type Manager struct {
	store   Store
	expiry  ExpiryPolicy
	bus     Emitter
	metrics MetricsSink // optional, nil = disabled
	logger  *log.Logger
	clock   func() time.Time
}

func New(store Store, expiry ExpiryPolicy, bus Emitter, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:  store,
		expiry: expiry,
		bus:    bus,
		logger: logger,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the manager.
func (m *Manager) WithMetrics(sink MetricsSink) *Manager {
	m.metrics = sink
	return m
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Accept lets a translator take a pending booking. The collision check
// and the conditional status flip run in that order; when two translators
// race, the storage layer lets exactly one write through and the loser
// gets ErrNotPending without any partial state.
func (m *Manager) Accept(ctx context.Context, jobID, translatorID uuid.UUID) (domain.Job, error) {
	job, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	busy, err := m.store.TranslatorBusyAt(ctx, translatorID, job.Due)
	if err != nil {
		return domain.Job{}, fmt.Errorf("collision check: %w", err)
	}
	if busy {
		m.rejectAccept(rejectAlreadyBooked)
		return domain.Job{}, fmt.Errorf("%w: translator %s already booked at %s", domain.ErrAlreadyBooked, translatorID, job.Due)
	}

	swapped, err := m.store.CompareAndSwapStatus(ctx, jobID, domain.StatusPending, domain.StatusAssigned)
	if err != nil {
		return domain.Job{}, fmt.Errorf("status swap: %w", err)
	}
	if !swapped {
		m.rejectAccept(rejectNotPending)
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotPending, jobID)
	}

	now := m.clock().UTC()
	a := domain.Assignment{
		ID:           uuid.New(),
		JobID:        jobID,
		TranslatorID: translatorID,
		AssignedAt:   now,
	}
	if err := m.store.CreateAssignment(ctx, &a); err != nil {
		return domain.Job{}, fmt.Errorf("create assignment: %w", err)
	}
	job.Status = domain.StatusAssigned

	if m.metrics != nil {
		m.metrics.AcceptSucceeded()
	}
	m.logger.Printf("assignment: job=%s accepted by translator=%s", jobID, translatorID)

	m.emit(ctx, domain.NotificationEvent{
		Kind:            domain.EventJobAccepted,
		Job:             job.ToSnapshot(),
		NewTranslatorID: translatorID,
		CreatedAt:       now,
	})
	m.emit(ctx, domain.NotificationEvent{
		Kind:       domain.EventSessionStartRemind,
		Job:        job.ToSnapshot(),
		Recipients: []uuid.UUID{job.CustomerID},
		CreatedAt:  now,
	})
	m.emit(ctx, domain.NotificationEvent{
		Kind:       domain.EventSessionStartRemind,
		Job:        job.ToSnapshot(),
		Recipients: []uuid.UUID{translatorID},
		CreatedAt:  now,
	})
	return job, nil
}

// Reassign closes the current assignment, if any, and creates a new one.
// The target translator comes either as an id or as an email to resolve.
// It reports the old and new identities so the caller can log and notify.
func (m *Manager) Reassign(ctx context.Context, job *domain.Job, translatorID uuid.UUID, translatorEmail string) (lifecycle.ReassignResult, error) {
	if translatorID == uuid.Nil && translatorEmail != "" {
		t, err := m.store.GetTranslatorByEmail(ctx, translatorEmail)
		if err != nil {
			return lifecycle.ReassignResult{}, fmt.Errorf("resolve translator %s: %w", translatorEmail, err)
		}
		translatorID = t.ID
	}
	if translatorID == uuid.Nil {
		return lifecycle.ReassignResult{}, domain.Validation("translator", "missing id or email")
	}

	now := m.clock().UTC()
	res := lifecycle.ReassignResult{NewTranslatorID: translatorID}

	current, ok, err := m.store.ActiveAssignment(ctx, job.ID)
	if err != nil {
		return lifecycle.ReassignResult{}, fmt.Errorf("active assignment: %w", err)
	}
	if ok {
		if current.TranslatorID == translatorID {
			return lifecycle.ReassignResult{OldTranslatorID: translatorID, NewTranslatorID: translatorID}, nil
		}
		res.OldTranslatorID = current.TranslatorID
		if err := m.store.CloseAssignment(ctx, current.ID, now); err != nil {
			return lifecycle.ReassignResult{}, fmt.Errorf("close assignment: %w", err)
		}
	}

	next := domain.Assignment{
		ID:           uuid.New(),
		JobID:        job.ID,
		TranslatorID: translatorID,
		AssignedAt:   now,
	}
	if err := m.store.CreateAssignment(ctx, &next); err != nil {
		return lifecycle.ReassignResult{}, fmt.Errorf("create assignment: %w", err)
	}
	res.Changed = true
	m.logger.Printf("assignment: job=%s reassigned %s -> %s", job.ID, res.OldTranslatorID, translatorID)
	return res, nil
}

// CancelByCustomer withdraws a booking on the customer's initiative. The
// status records whether at least 24 hours remained; withdraw_at is
// always stamped. The active translator, if any, is told.
func (m *Manager) CancelByCustomer(ctx context.Context, jobID, customerID uuid.UUID) (domain.Job, error) {
	job, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	now := m.clock().UTC()
	if job.Due.Sub(now) >= 24*time.Hour {
		job.Status = domain.StatusWithdrawBefore24
	} else {
		job.Status = domain.StatusWithdrawAfter24
	}
	job.WithdrawAt = &now

	if err := m.store.SaveJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("save job: %w", err)
	}
	m.logger.Printf("assignment: job=%s cancelled by customer=%s status=%s", jobID, customerID, job.Status)

	current, ok, err := m.store.ActiveAssignment(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("active assignment: %w", err)
	}
	if ok {
		if err := m.store.CloseAssignment(ctx, current.ID, now); err != nil {
			return domain.Job{}, fmt.Errorf("close assignment: %w", err)
		}
		m.emit(ctx, domain.NotificationEvent{
			Kind:       domain.EventJobCancelled,
			Job:        job.ToSnapshot(),
			Recipients: []uuid.UUID{current.TranslatorID},
			ByCustomer: true,
			CreatedAt:  now,
		})
	}
	return job, nil
}

// CancelByTranslator releases a booking back into the matching pool when
// more than 24 hours remain. Closer to the session the cancellation is
// refused outright; phone support takes over from there.
func (m *Manager) CancelByTranslator(ctx context.Context, jobID, translatorID uuid.UUID) (domain.Job, error) {
	job, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	now := m.clock().UTC()
	if job.Due.Sub(now) <= 24*time.Hour {
		return domain.Job{}, fmt.Errorf("%w: job %s due %s", domain.ErrTooLateToCancel, jobID, job.Due)
	}

	current, ok, err := m.store.ActiveAssignment(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("active assignment: %w", err)
	}
	if ok {
		if err := m.store.CloseAssignment(ctx, current.ID, now); err != nil {
			return domain.Job{}, fmt.Errorf("close assignment: %w", err)
		}
	}

	job.Status = domain.StatusPending
	job.CreatedAt = now
	job.WillExpireAt = m.expiry.ComputeExpiry(job.Due, now)
	job.Cust16HourEmailSent = false
	job.Cust48HourEmailSent = false

	if err := m.store.SaveJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("save job: %w", err)
	}
	m.logger.Printf("assignment: job=%s cancelled by translator=%s, back to pending", jobID, translatorID)

	m.emit(ctx, domain.NotificationEvent{
		Kind:      domain.EventJobCancelled,
		Job:       job.ToSnapshot(),
		CreatedAt: now,
	})
	m.emit(ctx, domain.NotificationEvent{
		Kind:              domain.EventJobReopened,
		Job:               job.ToSnapshot(),
		ExcludeTranslator: translatorID,
		CreatedAt:         now,
	})
	return job, nil
}

// Reopen revives an expired or withdrawn booking. A timedout booking's
// identity is spent, so reviving one creates a fresh copy and leaves the
// original untouched apart from closing its assignment; any other status
// is reset to pending in place.
func (m *Manager) Reopen(ctx context.Context, jobID uuid.UUID, actor lifecycle.Actor) (domain.Job, error) {
	job, err := m.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	now := m.clock().UTC()
	reopened := job

	if job.Status == domain.StatusTimedout {
		reopened.ID = uuid.New()
		reopened.Status = domain.StatusPending
		reopened.CreatedAt = now
		reopened.WillExpireAt = m.expiry.ComputeExpiry(reopened.Due, now)
		reopened.AdminComments = fmt.Sprintf("This booking is a reopening of booking #%s", job.ID)
		reopened.WithdrawAt = nil
		reopened.EndAt = nil
		reopened.SessionTime = ""
		reopened.Cust16HourEmailSent = false
		reopened.Cust48HourEmailSent = false
		if err := m.store.CreateJob(ctx, &reopened); err != nil {
			return domain.Job{}, fmt.Errorf("create job: %w", err)
		}
	} else {
		reopened.Status = domain.StatusPending
		reopened.CreatedAt = now
		reopened.WillExpireAt = m.expiry.ComputeExpiry(reopened.Due, now)
		reopened.Cust16HourEmailSent = false
		reopened.Cust48HourEmailSent = false
		if err := m.store.SaveJob(ctx, &reopened); err != nil {
			return domain.Job{}, fmt.Errorf("save job: %w", err)
		}
	}

	current, ok, err := m.store.ActiveAssignment(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("active assignment: %w", err)
	}
	if ok {
		if err := m.store.CloseAssignment(ctx, current.ID, now); err != nil {
			return domain.Job{}, fmt.Errorf("close assignment: %w", err)
		}
	}

	// A closed placeholder row records who reopened the booking.
	placeholder := domain.Assignment{
		ID:           uuid.New(),
		JobID:        reopened.ID,
		TranslatorID: actor.ID,
		AssignedAt:   now,
		CancelAt:     &now,
	}
	if err := m.store.CreateAssignment(ctx, &placeholder); err != nil {
		return domain.Job{}, fmt.Errorf("create placeholder assignment: %w", err)
	}

	m.logger.Printf("assignment: job=%s reopened as %s by %s", jobID, reopened.ID, actor.Name)
	m.emit(ctx, domain.NotificationEvent{
		Kind:      domain.EventJobReopened,
		Job:       reopened.ToSnapshot(),
		CreatedAt: now,
	})
	return reopened, nil
}

func (m *Manager) rejectAccept(reason string) {
	if m.metrics != nil {
		m.metrics.AcceptRejected(reason)
	}
}

// emit publishes one event. State is already committed; failures are
// logged and dropped.
func (m *Manager) emit(ctx context.Context, ev domain.NotificationEvent) {
	if err := m.bus.Emit(ctx, ev); err != nil {
		m.logger.Printf("assignment: job=%s emit %s failed: %v", ev.Job.JobID, ev.Kind, err)
	}
}

var _ lifecycle.Reassigner = (*Manager)(nil)
