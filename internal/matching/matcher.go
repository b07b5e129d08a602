// Package matching decides which translators may take which bookings.
package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/domain"
)

// Store is the read side the matcher needs. Reads are eventually
// consistent snapshots; a translator listed here can still lose the
// atomic accept check later.
type Store interface {
	PendingJobsByType(ctx context.Context, jobType domain.JobType) ([]domain.Job, error)
	ActiveTranslators(ctx context.Context) ([]domain.TranslatorProfile, error)
	IsBlacklisted(ctx context.Context, customerID, translatorID uuid.UUID) (bool, error)
	SharesTown(ctx context.Context, customerID, translatorID uuid.UUID) (bool, error)
	// DirectedTo returns the translator a booking was explicitly offered
	// to, if any.
	DirectedTo(ctx context.Context, jobID uuid.UUID) (uuid.UUID, bool, error)
}

type Matcher struct {
	store Store
}

func New(store Store) *Matcher {
	return &Matcher{store: store}
}

// Eligible applies every matching rule for one job/translator pair.
func (m *Matcher) Eligible(ctx context.Context, job *domain.Job, t *domain.TranslatorProfile) (bool, error) {
	if domain.JobTypeFor(t.Type) != job.JobType {
		return false, nil
	}

	if !levelAllowed(t.Level, job.Certified) {
		return false, nil
	}

	if job.Gender != domain.GenderNone && t.Gender != job.Gender {
		return false, nil
	}

	if !speaks(t, job.FromLanguageID) {
		return false, nil
	}

	blacklisted, err := m.store.IsBlacklisted(ctx, job.CustomerID, t.ID)
	if err != nil {
		return false, fmt.Errorf("blacklist check: %w", err)
	}
	if blacklisted {
		return false, nil
	}

	// A physical-only booking needs the translator in the customer's town.
	if !job.CustomerPhoneAllowed && job.CustomerPhysicalAllowed {
		same, err := m.store.SharesTown(ctx, job.CustomerID, t.ID)
		if err != nil {
			return false, fmt.Errorf("town check: %w", err)
		}
		if !same {
			return false, nil
		}
	}

	directedTo, directed, err := m.store.DirectedTo(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("directed offer check: %w", err)
	}
	if directed && directedTo != t.ID && t.NoDirectedJobs {
		return false, nil
	}

	return true, nil
}

// PotentialTranslators filters the active translator pool for a job.
func (m *Matcher) PotentialTranslators(ctx context.Context, job *domain.Job) ([]domain.TranslatorProfile, error) {
	pool, err := m.store.ActiveTranslators(ctx)
	if err != nil {
		return nil, fmt.Errorf("translator pool: %w", err)
	}

	var out []domain.TranslatorProfile
	for i := range pool {
		ok, err := m.Eligible(ctx, job, &pool[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pool[i])
		}
	}
	return out, nil
}

// PotentialJobs returns the pending bookings a translator could take,
// narrowed first by the job type the translator's type serves.
func (m *Matcher) PotentialJobs(ctx context.Context, t *domain.TranslatorProfile) ([]domain.Job, error) {
	jobs, err := m.store.PendingJobsByType(ctx, domain.JobTypeFor(t.Type))
	if err != nil {
		return nil, fmt.Errorf("pending jobs: %w", err)
	}

	var out []domain.Job
	for i := range jobs {
		ok, err := m.Eligible(ctx, &jobs[i], t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, jobs[i])
		}
	}
	return out, nil
}

func levelAllowed(level domain.TranslatorLevel, c domain.Certification) bool {
	for _, l := range domain.LevelsFor(c) {
		if l == level {
			return true
		}
	}
	return false
}

func speaks(t *domain.TranslatorProfile, lang uuid.UUID) bool {
	for _, l := range t.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
