// Package lifecycle owns the booking status state machine. Transition
// dispatch is keyed by the job's current status; each entry decides which
// targets are legal from there and which side effects apply. State is
// saved before any notification event is emitted, so a transport failure
// can never roll back a committed transition.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

type Store interface {
	GetJobByID(ctx context.Context, jobID uuid.UUID) (domain.Job, error)
	SaveJob(ctx context.Context, job *domain.Job) error
	// ActiveAssignment returns the job's live translator link, if any.
	ActiveAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error)
	// LatestAssignment returns the most recent assignment regardless of
	// state, used as a fallback when none is active.
	LatestAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error)
	CompleteAssignment(ctx context.Context, assignmentID uuid.UUID, at time.Time, by uuid.UUID) error
}

// Reassigner swaps the translator on a job, closing the old assignment
// and creating a new one.
type Reassigner interface {
	Reassign(ctx context.Context, job *domain.Job, translatorID uuid.UUID, translatorEmail string) (ReassignResult, error)
}

type ReassignResult struct {
	OldTranslatorID uuid.UUID
	NewTranslatorID uuid.UUID
	Changed         bool
}

// Emitter hands committed events to the notification pipeline.
type Emitter interface {
	Emit(ctx context.Context, ev domain.NotificationEvent) error
}

// ExpiryPolicy derives will_expire_at when a booking re-enters the pool.
type ExpiryPolicy interface {
	ComputeExpiry(due, createdAt time.Time) time.Time
}

// MetricsSink defines the interface for recording lifecycle metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TransitionApplied(from, to string)
	TransitionRejected(from, to string)
}

// Actor identifies who requested an operation. It is threaded through
// explicitly for logging; authorization happens at the caller.
type Actor struct {
	ID   uuid.UUID
	Name string
	Kind string // customer, translator, admin
}

// JobPatch carries the optional fields of a composite update. Nil means
// leave the field unchanged.
type JobPatch struct {
	Status          *domain.Status
	Due             *time.Time
	FromLanguageID  *uuid.UUID
	TranslatorID    *uuid.UUID
	TranslatorEmail *string

	AdminComments *string
	Reference     *string

	// SessionTime is the elapsed interval "H:MM:SS", required when
	// completing a started booking.
	SessionTime *string
}

type Engine struct {
	store      Store
	reassigner Reassigner
	expiry     ExpiryPolicy
	bus        Emitter
	metrics    MetricsSink // optional, nil = disabled
	logger     *log.Logger
	clock      func() time.Time
}

func New(store Store, reassigner Reassigner, expiry ExpiryPolicy, bus Emitter, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:      store,
		reassigner: reassigner,
		expiry:     expiry,
		bus:        bus,
		logger:     logger,
		clock:      time.Now,
	}
}

// WithMetrics attaches a metrics sink to the engine.
func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// WithClock replaces the time source, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// update is the mutable working set of one composite update.
type update struct {
	job        *domain.Job
	patch      JobPatch
	actor      Actor
	assignment *domain.Assignment
	now        time.Time

	translatorChanged bool
	oldTranslatorID   uuid.UUID
	newTranslatorID   uuid.UUID

	events []domain.NotificationEvent
}

// comment resolves the admin comment the transition should see: the
// incoming patch value when present, the stored one otherwise.
func (u *update) comment() string {
	if u.patch.AdminComments != nil {
		return *u.patch.AdminComments
	}
	return u.job.AdminComments
}

func (u *update) emit(kind domain.EventKind, mutate func(*domain.NotificationEvent)) {
	ev := domain.NotificationEvent{
		Kind:      kind,
		Job:       u.job.ToSnapshot(),
		CreatedAt: u.now,
	}
	if mutate != nil {
		mutate(&ev)
	}
	u.events = append(u.events, ev)
}

// transitions keys the legal-target predicate and side effects by the
// job's current status. A status absent from the table permits nothing.
var transitions = map[domain.Status]func(*Engine, context.Context, *update, domain.Status) error{
	domain.StatusPending:         (*Engine).fromPending,
	domain.StatusAssigned:        (*Engine).fromAssigned,
	domain.StatusStarted:         (*Engine).fromStarted,
	domain.StatusCompleted:       (*Engine).fromCompleted,
	domain.StatusTimedout:        (*Engine).fromTimedout,
	domain.StatusWithdrawAfter24: (*Engine).fromWithdrawAfter24,
}

// ChangeStatus applies a bare status change with no other field updates.
func (e *Engine) ChangeStatus(ctx context.Context, jobID uuid.UUID, target domain.Status, actor Actor) (domain.Job, error) {
	return e.UpdateJob(ctx, jobID, JobPatch{Status: &target}, actor)
}

// UpdateJob is the composite update: reassignment, due change, language
// change and status change applied in one pass, persisted once, with the
// resulting notification events emitted only after the save. A booking
// whose (possibly new) due time is already past still emits the events
// its status transition produced, but the date, language and translator
// change notices are skipped.
func (e *Engine) UpdateJob(ctx context.Context, jobID uuid.UUID, patch JobPatch, actor Actor) (domain.Job, error) {
	job, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	u := &update{job: &job, patch: patch, actor: actor, now: e.clock().UTC()}

	current, ok, err := e.store.ActiveAssignment(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("active assignment: %w", err)
	}
	if !ok {
		current, ok, err = e.store.LatestAssignment(ctx, jobID)
		if err != nil {
			return domain.Job{}, fmt.Errorf("latest assignment: %w", err)
		}
	}
	if ok {
		u.assignment = &current
	}

	if err := e.applyReassignment(ctx, u); err != nil {
		return domain.Job{}, err
	}

	var dueChanged bool
	var oldDue time.Time
	if patch.Due != nil && !patch.Due.Equal(job.Due) {
		oldDue = job.Due
		job.Due = *patch.Due
		dueChanged = true
		e.logger.Printf("lifecycle: job=%s due %s -> %s actor=%s", job.ID, oldDue.Format(time.RFC3339), job.Due.Format(time.RFC3339), actor.Name)
	}

	var langChanged bool
	var oldLang uuid.UUID
	if patch.FromLanguageID != nil && *patch.FromLanguageID != job.FromLanguageID {
		oldLang = job.FromLanguageID
		job.FromLanguageID = *patch.FromLanguageID
		langChanged = true
		e.logger.Printf("lifecycle: job=%s language %s -> %s actor=%s", job.ID, oldLang, job.FromLanguageID, actor.Name)
	}

	if patch.Status != nil && *patch.Status != job.Status {
		if err := e.applyTransition(ctx, u, *patch.Status); err != nil {
			return domain.Job{}, err
		}
	}

	if patch.AdminComments != nil {
		job.AdminComments = *patch.AdminComments
	}
	if patch.Reference != nil {
		job.Reference = *patch.Reference
	}

	if err := e.store.SaveJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("save job: %w", err)
	}

	// A booking already past due needs no field-change notices; those
	// changes are kept quiet. Events collected by the transition itself
	// still fire, a session summary is owed even when it is sent late.
	if !job.Due.Before(u.now) {
		if u.translatorChanged {
			u.emit(domain.EventTranslatorChanged, func(ev *domain.NotificationEvent) {
				ev.OldTranslatorID = u.oldTranslatorID
				ev.NewTranslatorID = u.newTranslatorID
			})
		}
		if dueChanged {
			recipients := currentTranslatorRecipients(u)
			u.emit(domain.EventDateChanged, func(ev *domain.NotificationEvent) {
				ev.OldDue = oldDue
				ev.Recipients = recipients
			})
		}
		if langChanged {
			recipients := currentTranslatorRecipients(u)
			u.emit(domain.EventLanguageChanged, func(ev *domain.NotificationEvent) {
				ev.OldLanguageID = oldLang
				ev.Recipients = recipients
			})
		}
	}

	e.emitAll(ctx, u)
	return job, nil
}

func (e *Engine) applyReassignment(ctx context.Context, u *update) error {
	if u.patch.TranslatorID == nil && u.patch.TranslatorEmail == nil {
		return nil
	}
	var id uuid.UUID
	if u.patch.TranslatorID != nil {
		id = *u.patch.TranslatorID
	}
	var email string
	if u.patch.TranslatorEmail != nil {
		email = *u.patch.TranslatorEmail
	}
	res, err := e.reassigner.Reassign(ctx, u.job, id, email)
	if err != nil {
		return fmt.Errorf("reassign: %w", err)
	}
	if res.Changed {
		u.translatorChanged = true
		u.oldTranslatorID = res.OldTranslatorID
		u.newTranslatorID = res.NewTranslatorID
		e.logger.Printf("lifecycle: job=%s translator %s -> %s actor=%s", u.job.ID, res.OldTranslatorID, res.NewTranslatorID, u.actor.Name)
	}
	return nil
}

func (e *Engine) applyTransition(ctx context.Context, u *update, target domain.Status) error {
	from := u.job.Status
	fn, ok := transitions[from]
	if !ok {
		return e.reject(from, target)
	}
	if err := fn(e, ctx, u, target); err != nil {
		if e.metrics != nil {
			e.metrics.TransitionRejected(string(from), string(target))
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.TransitionApplied(string(from), string(target))
	}
	e.logger.Printf("lifecycle: job=%s status %s -> %s actor=%s at=%s", u.job.ID, from, target, u.actor.Name, u.now.Format(time.RFC3339))
	return nil
}

func (e *Engine) reject(from, to domain.Status) error {
	if e.metrics != nil {
		e.metrics.TransitionRejected(string(from), string(to))
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
}

// fromPending allows assigned only when a translator was attached in the
// same update; every other target is an administrative closure that
// notifies the customer. Timing out a pending booking needs a comment.
func (e *Engine) fromPending(ctx context.Context, u *update, target domain.Status) error {
	switch target {
	case domain.StatusAssigned:
		if !u.translatorChanged {
			return fmt.Errorf("%w: pending -> assigned without a translator", domain.ErrIllegalTransition)
		}
		u.job.Status = domain.StatusAssigned
		u.emit(domain.EventJobAccepted, func(ev *domain.NotificationEvent) {
			ev.NewTranslatorID = u.newTranslatorID
		})
		u.emit(domain.EventSessionStartRemind, func(ev *domain.NotificationEvent) {
			ev.Recipients = []uuid.UUID{u.job.CustomerID}
		})
		u.emit(domain.EventSessionStartRemind, func(ev *domain.NotificationEvent) {
			ev.Recipients = []uuid.UUID{u.newTranslatorID}
		})
		return nil
	case domain.StatusTimedout:
		if u.comment() == "" {
			return fmt.Errorf("%w: pending -> timedout needs an admin comment", domain.ErrIllegalTransition)
		}
		fallthrough
	default:
		u.job.Status = target
		u.emit(domain.EventStatusChangedCustomer, nil)
		return nil
	}
}

// fromAssigned permits only the two withdrawal targets, each demanding a
// real comment. Both parties get a cancellation notice.
func (e *Engine) fromAssigned(ctx context.Context, u *update, target domain.Status) error {
	if target != domain.StatusWithdrawBefore24 && target != domain.StatusWithdrawAfter24 {
		return e.rejectNoMetrics(u.job.Status, target)
	}
	c := u.comment()
	if c == "" || c == string(domain.StatusTimedout) {
		return fmt.Errorf("%w: assigned -> %s needs an admin comment", domain.ErrIllegalTransition, target)
	}
	u.job.Status = target
	withdrawAt := u.now
	u.job.WithdrawAt = &withdrawAt

	u.emit(domain.EventStatusChangedCustomer, nil)
	if recipients := currentTranslatorRecipients(u); len(recipients) > 0 {
		u.emit(domain.EventJobCancelled, func(ev *domain.NotificationEvent) {
			ev.Recipients = recipients
			ev.ByCustomer = true
		})
	}
	return nil
}

// fromStarted demands a comment for every target. Completing additionally
// needs the elapsed session time; it stamps end_at, closes the active
// assignment and mails the session summary to both parties.
func (e *Engine) fromStarted(ctx context.Context, u *update, target domain.Status) error {
	if u.comment() == "" {
		return fmt.Errorf("%w: started -> %s needs an admin comment", domain.ErrIllegalTransition, target)
	}
	if target != domain.StatusCompleted {
		u.job.Status = target
		u.emit(domain.EventStatusChangedCustomer, nil)
		return nil
	}

	if u.patch.SessionTime == nil || *u.patch.SessionTime == "" {
		return fmt.Errorf("%w: started -> completed needs session_time", domain.ErrIllegalTransition)
	}
	sessionTime := *u.patch.SessionTime

	u.job.Status = domain.StatusCompleted
	u.job.SessionTime = sessionTime
	endAt := u.now
	u.job.EndAt = &endAt

	var recipients []uuid.UUID
	if u.assignment != nil && u.assignment.Active() {
		if err := e.store.CompleteAssignment(ctx, u.assignment.ID, u.now, u.actor.ID); err != nil {
			return fmt.Errorf("complete assignment: %w", err)
		}
		recipients = []uuid.UUID{u.assignment.TranslatorID}
	}

	u.emit(domain.EventSessionEnded, func(ev *domain.NotificationEvent) {
		ev.Recipients = recipients
		ev.SessionTime = FormatSessionTime(sessionTime)
	})
	return nil
}

// fromCompleted allows re-timing-out only, with a comment on record.
func (e *Engine) fromCompleted(ctx context.Context, u *update, target domain.Status) error {
	if target != domain.StatusTimedout {
		return e.rejectNoMetrics(u.job.Status, target)
	}
	if u.comment() == "" {
		return fmt.Errorf("%w: completed -> timedout needs an admin comment", domain.ErrIllegalTransition)
	}
	u.job.Status = domain.StatusTimedout
	return nil
}

// fromTimedout reopens in place on a pending target. Any other target is
// legal only when a reassignment happened in the same update; the status
// is then taken as given and the acceptance notice fires.
func (e *Engine) fromTimedout(ctx context.Context, u *update, target domain.Status) error {
	if target == domain.StatusPending {
		u.job.Status = domain.StatusPending
		u.job.CreatedAt = u.now
		u.job.WillExpireAt = e.expiry.ComputeExpiry(u.job.Due, u.now)
		u.job.Cust16HourEmailSent = false
		u.job.Cust48HourEmailSent = false
		u.emit(domain.EventJobReopened, nil)
		return nil
	}
	if !u.translatorChanged {
		return e.rejectNoMetrics(u.job.Status, target)
	}
	u.job.Status = target
	u.emit(domain.EventJobAccepted, func(ev *domain.NotificationEvent) {
		ev.NewTranslatorID = u.newTranslatorID
	})
	return nil
}

func (e *Engine) fromWithdrawAfter24(ctx context.Context, u *update, target domain.Status) error {
	if target != domain.StatusTimedout {
		return e.rejectNoMetrics(u.job.Status, target)
	}
	if u.comment() == "" {
		return fmt.Errorf("%w: withdrawafter24 -> timedout needs an admin comment", domain.ErrIllegalTransition)
	}
	u.job.Status = domain.StatusTimedout
	return nil
}

// rejectNoMetrics builds the illegal-transition error; applyTransition
// records the rejection metric for every error path.
func (e *Engine) rejectNoMetrics(from, to domain.Status) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
}

// emitAll publishes collected events. The state is already saved; a full
// buffer or cancelled context is logged and dropped.
func (e *Engine) emitAll(ctx context.Context, u *update) {
	for _, ev := range u.events {
		if err := e.bus.Emit(ctx, ev); err != nil {
			e.logger.Printf("lifecycle: job=%s emit %s failed: %v", u.job.ID, ev.Kind, err)
		}
	}
}

func currentTranslatorRecipients(u *update) []uuid.UUID {
	if u.translatorChanged {
		return []uuid.UUID{u.newTranslatorID}
	}
	if u.assignment != nil && u.assignment.Active() {
		return []uuid.UUID{u.assignment.TranslatorID}
	}
	return nil
}

// FormatSessionTime renders an elapsed "H:MM:SS" interval the way the
// session summary emails expect, e.g. "1 tim 30 min".
func FormatSessionTime(interval string) string {
	parts := strings.Split(interval, ":")
	if len(parts) < 2 {
		return interval
	}
	h := strings.TrimPrefix(parts[0], "0")
	if h == "" {
		h = "0"
	}
	m := strings.TrimPrefix(parts[1], "0")
	if m == "" {
		m = "0"
	}
	return fmt.Sprintf("%s tim %s min", h, m)
}
