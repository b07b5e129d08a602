// Package sweeper runs the periodic background passes over the booking
// pool: moving pending bookings past their expiry deadline to timedout
// and emitting session-start reminders shortly before due.
//
// The expiry write is conditional on the status still being pending, so
// a booking accepted between the scan and the write is left alone. The
// sweep is safe to run on several instances, but is normally gated by
// leader election to avoid duplicate reminder pushes.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

type Store interface {
	// ExpirePendingJobs flips pending bookings whose will_expire_at has
	// passed to timedout and returns the affected rows.
	ExpirePendingJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)

	// JobsDueForReminder returns assigned or started bookings due inside
	// the window that have not had their reminder sent yet.
	JobsDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]domain.Job, error)

	ActiveAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error)

	MarkReminderSent(ctx context.Context, jobID uuid.UUID) error
}

// Emitter hands events to the notification pipeline.
type Emitter interface {
	Emit(ctx context.Context, ev domain.NotificationEvent) error
}

// MetricsSink defines the interface for recording sweeper metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JobsExpired(count int)
	RemindersSent(count int)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweeper runs.
	// Default: 1 minute.
	Interval time.Duration

	// ReminderLead is how far before due the session-start reminder goes
	// out. Default: 15 minutes.
	ReminderLead time.Duration

	// BatchSize is the maximum number of rows to process per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		ReminderLead: 15 * time.Minute,
		BatchSize:    100,
	}
}

type Sweeper struct {
	config  Config
	store   Store
	emitter Emitter
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(config Config, store Store, emitter Emitter) *Sweeper {
	return &Sweeper{
		config:  config,
		store:   store,
		emitter: emitter,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the sweeper.
func (s *Sweeper) WithMetrics(sink MetricsSink) *Sweeper {
	s.metrics = sink
	return s
}

// WithClock replaces the time source, for tests.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("sweeper: started (interval=%s, reminder_lead=%s, batch=%d)",
		s.config.Interval, s.config.ReminderLead, s.config.BatchSize)

	// Run immediately on startup, then on ticker
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one sweep: expiry first, reminders second.
func (s *Sweeper) RunCycle(ctx context.Context) {
	now := s.clock().UTC()
	s.expire(ctx, now)
	s.remind(ctx, now)
}

func (s *Sweeper) expire(ctx context.Context, now time.Time) {
	expired, err := s.store.ExpirePendingJobs(ctx, now, s.config.BatchSize)
	if err != nil {
		// DB error: log and abort. Will retry next interval.
		log.Printf("sweeper: failed to expire jobs: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	for _, job := range expired {
		if ctx.Err() != nil {
			log.Printf("sweeper: expiry interrupted after %d jobs", len(expired))
			return
		}
		log.Printf("sweeper: job=%s expired (was due %s)", job.ID, job.Due.Format(time.RFC3339))
		ev := domain.NotificationEvent{
			Kind:      domain.EventStatusChangedCustomer,
			Job:       job.ToSnapshot(),
			CreatedAt: now,
		}
		if err := s.emitter.Emit(ctx, ev); err != nil {
			log.Printf("sweeper: failed to emit expiry notice for job=%s: %v", job.ID, err)
		}
	}
	if s.metrics != nil {
		s.metrics.JobsExpired(len(expired))
	}
	log.Printf("sweeper: expired %d jobs", len(expired))
}

func (s *Sweeper) remind(ctx context.Context, now time.Time) {
	jobs, err := s.store.JobsDueForReminder(ctx, now, now.Add(s.config.ReminderLead), s.config.BatchSize)
	if err != nil {
		log.Printf("sweeper: failed to fetch reminder candidates: %v", err)
		return
	}

	sent := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			log.Printf("sweeper: reminders interrupted, sent %d/%d", sent, len(jobs))
			return
		}

		recipients := []uuid.UUID{job.CustomerID}
		if a, ok, err := s.store.ActiveAssignment(ctx, job.ID); err != nil {
			log.Printf("sweeper: job=%s assignment lookup failed: %v", job.ID, err)
			continue
		} else if ok {
			recipients = append(recipients, a.TranslatorID)
		}

		failed := false
		for _, r := range recipients {
			ev := domain.NotificationEvent{
				Kind:       domain.EventSessionStartRemind,
				Job:        job.ToSnapshot(),
				Recipients: []uuid.UUID{r},
				CreatedAt:  now,
			}
			if err := s.emitter.Emit(ctx, ev); err != nil {
				// Leave the flag unset so the next cycle retries.
				log.Printf("sweeper: failed to emit reminder for job=%s: %v", job.ID, err)
				failed = true
				break
			}
		}
		if failed {
			continue
		}

		if err := s.store.MarkReminderSent(ctx, job.ID); err != nil {
			log.Printf("sweeper: failed to mark reminder for job=%s: %v", job.ID, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		if s.metrics != nil {
			s.metrics.RemindersSent(sent)
		}
		log.Printf("sweeper: sent %d session-start reminders", sent)
	}
}
