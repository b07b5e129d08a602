// Package booking is the entry point for booking operations: creation,
// contact-detail confirmation, the matching views and passthroughs to the
// lifecycle and assignment collaborators.
package booking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
	"github.com/tolkly/bookingd/internal/lifecycle"
)

// immediateLeadTime is how far ahead an urgent booking is scheduled.
const immediateLeadTime = 5 * time.Minute

type Store interface {
	GetJobByID(ctx context.Context, jobID uuid.UUID) (domain.Job, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	SaveJob(ctx context.Context, job *domain.Job) error
	GetCustomerByID(ctx context.Context, customerID uuid.UUID) (domain.Customer, error)
	GetTranslatorByID(ctx context.Context, translatorID uuid.UUID) (domain.TranslatorProfile, error)
}

// Matcher exposes the two matching views.
type Matcher interface {
	PotentialTranslators(ctx context.Context, job *domain.Job) ([]domain.TranslatorProfile, error)
	PotentialJobs(ctx context.Context, t *domain.TranslatorProfile) ([]domain.Job, error)
}

// Emitter hands committed events to the notification pipeline.
type Emitter interface {
	Emit(ctx context.Context, ev domain.NotificationEvent) error
}

// ExpiryPolicy derives will_expire_at for new bookings.
type ExpiryPolicy interface {
	ComputeExpiry(due, createdAt time.Time) time.Time
}

// Lifecycle is the composite-update collaborator.
type Lifecycle interface {
	UpdateJob(ctx context.Context, jobID uuid.UUID, patch lifecycle.JobPatch, actor lifecycle.Actor) (domain.Job, error)
	ChangeStatus(ctx context.Context, jobID uuid.UUID, target domain.Status, actor lifecycle.Actor) (domain.Job, error)
}

// CreateRequest is the typed creation payload. Scheduled bookings carry
// an explicit due time; immediate bookings ignore it and are slotted a
// few minutes out with phone contact forced on.
type CreateRequest struct {
	CustomerID     uuid.UUID
	FromLanguageID uuid.UUID

	Immediate bool
	Due       time.Time
	Duration  int // minutes

	Gender    domain.Gender
	Certified domain.Certification

	PhoneAllowed    bool
	PhysicalAllowed bool
	Town            string

	Reference string
}

// ContactDetails confirms a booking with the correspondence address and
// an optional per-booking email override.
type ContactDetails struct {
	OverrideEmail string
	Reference     string
	Town          string
}

type Service struct {
	store     Store
	matcher   Matcher
	lifecycle Lifecycle
	expiry    ExpiryPolicy
	bus       Emitter
	logger    *log.Logger
	clock     func() time.Time
}

func New(store Store, matcher Matcher, lc Lifecycle, expiry ExpiryPolicy, bus Emitter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     store,
		matcher:   matcher,
		lifecycle: lc,
		expiry:    expiry,
		bus:       bus,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create validates the request, derives the job type from the customer's
// consumer type and advertises the new booking to the translator pool.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Job, error) {
	if req.FromLanguageID == uuid.Nil {
		return domain.Job{}, domain.Validation("from_language_id", "required")
	}
	if req.Duration <= 0 {
		return domain.Job{}, domain.Validation("duration", "must be positive")
	}

	now := s.clock().UTC()
	due := req.Due
	phoneAllowed := req.PhoneAllowed

	if req.Immediate {
		due = now.Add(immediateLeadTime)
		phoneAllowed = true
	} else {
		if due.IsZero() {
			return domain.Job{}, domain.Validation("due", "required")
		}
		if due.Before(now) {
			return domain.Job{}, fmt.Errorf("%w: due %s", domain.ErrPastDue, due.Format(time.RFC3339))
		}
		if !phoneAllowed && !req.PhysicalAllowed {
			return domain.Job{}, domain.Validation("contact", "phone or physical contact must be allowed")
		}
	}

	cust, err := s.store.GetCustomerByID(ctx, req.CustomerID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get customer: %w", err)
	}

	town := req.Town
	if town == "" {
		town = cust.Town
	}

	job := domain.Job{
		ID:                      uuid.New(),
		CustomerID:              req.CustomerID,
		Status:                  domain.StatusPending,
		Due:                     due,
		Immediate:               req.Immediate,
		FromLanguageID:          req.FromLanguageID,
		Duration:                req.Duration,
		Gender:                  req.Gender,
		Certified:               req.Certified,
		JobType:                 domain.JobTypeForConsumer(cust.ConsumerType),
		CustomerPhoneAllowed:    phoneAllowed,
		CustomerPhysicalAllowed: req.PhysicalAllowed,
		Town:                    town,
		Reference:               req.Reference,
		CreatedAt:               now,
		WillExpireAt:            s.expiry.ComputeExpiry(due, now),
	}

	if err := s.store.CreateJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}
	s.logger.Printf("booking: job=%s created customer=%s type=%s immediate=%t due=%s",
		job.ID, job.CustomerID, job.JobType, job.Immediate, job.Due.Format(time.RFC3339))

	s.emit(ctx, domain.NotificationEvent{
		Kind:      domain.EventJobCreated,
		Job:       job.ToSnapshot(),
		CreatedAt: now,
	})
	return job, nil
}

// SetContactDetails records the correspondence details for a booking and
// sends the received-booking confirmation.
func (s *Service) SetContactDetails(ctx context.Context, jobID uuid.UUID, details ContactDetails) (domain.Job, error) {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}

	job.OverrideEmail = details.OverrideEmail
	if details.Reference != "" {
		job.Reference = details.Reference
	}
	if details.Town != "" {
		job.Town = details.Town
	}

	if err := s.store.SaveJob(ctx, &job); err != nil {
		return domain.Job{}, fmt.Errorf("save job: %w", err)
	}

	s.emit(ctx, domain.NotificationEvent{
		Kind:      domain.EventBookingConfirmed,
		Job:       job.ToSnapshot(),
		CreatedAt: s.clock().UTC(),
	})
	return job, nil
}

// Snapshot returns the flattened notification view of a booking.
func (s *Service) Snapshot(ctx context.Context, jobID uuid.UUID) (domain.Snapshot, error) {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("get job: %w", err)
	}
	return job.ToSnapshot(), nil
}

// PotentialTranslators lists the translators eligible for a booking.
func (s *Service) PotentialTranslators(ctx context.Context, jobID uuid.UUID) ([]domain.TranslatorProfile, error) {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return s.matcher.PotentialTranslators(ctx, &job)
}

// PotentialJobs lists the pending bookings a translator could take.
func (s *Service) PotentialJobs(ctx context.Context, translatorID uuid.UUID) ([]domain.Job, error) {
	t, err := s.store.GetTranslatorByID(ctx, translatorID)
	if err != nil {
		return nil, fmt.Errorf("get translator: %w", err)
	}
	return s.matcher.PotentialJobs(ctx, &t)
}

// UpdateJob forwards the composite update to the lifecycle engine.
func (s *Service) UpdateJob(ctx context.Context, jobID uuid.UUID, patch lifecycle.JobPatch, actor lifecycle.Actor) (domain.Job, error) {
	return s.lifecycle.UpdateJob(ctx, jobID, patch, actor)
}

// ChangeStatus forwards a bare status change to the lifecycle engine.
func (s *Service) ChangeStatus(ctx context.Context, jobID uuid.UUID, target domain.Status, actor lifecycle.Actor) (domain.Job, error) {
	return s.lifecycle.ChangeStatus(ctx, jobID, target, actor)
}

func (s *Service) emit(ctx context.Context, ev domain.NotificationEvent) {
	if err := s.bus.Emit(ctx, ev); err != nil {
		s.logger.Printf("booking: job=%s emit %s failed: %v", ev.Job.JobID, ev.Kind, err)
	}
}
