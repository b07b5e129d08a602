package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tolkly/bookingd/internal/assignment"
	"github.com/tolkly/bookingd/internal/booking"
	"github.com/tolkly/bookingd/internal/domain"
	"github.com/tolkly/bookingd/internal/lifecycle"
	"github.com/tolkly/bookingd/internal/matching"
	"github.com/tolkly/bookingd/internal/notify"
	"github.com/tolkly/bookingd/internal/sweeper"
)

// Store implements the per-component store interfaces using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var job domain.Job
	var endAt, withdrawAt sql.NullTime
	err := row.Scan(
		&job.ID,
		&job.CustomerID,
		&job.Status,
		&job.Due,
		&job.Immediate,
		&job.FromLanguageID,
		&job.Duration,
		&job.Gender,
		&job.Certified,
		&job.JobType,
		&job.CustomerPhoneAllowed,
		&job.CustomerPhysicalAllowed,
		&job.Town,
		&job.AdminComments,
		&job.Reference,
		&job.Flagged,
		&job.OverrideEmail,
		&job.SessionTime,
		&job.CreatedAt,
		&job.WillExpireAt,
		&endAt,
		&withdrawAt,
		&job.Cust16HourEmailSent,
		&job.Cust48HourEmailSent,
	)
	if err != nil {
		return domain.Job{}, err
	}
	if endAt.Valid {
		job.EndAt = &endAt.Time
	}
	if withdrawAt.Valid {
		job.WithdrawAt = &withdrawAt.Time
	}
	return job, nil
}

// GetJobByID returns a booking by its ID.
func (s *Store) GetJobByID(ctx context.Context, jobID uuid.UUID) (domain.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, queryGetJobByID, jobID))
	if err == sql.ErrNoRows {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, err
}

// CreateJob inserts a new booking row.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, queryInsertJob, jobArgs(job)...)
	return err
}

// SaveJob overwrites the stored booking with the given state.
func (s *Store) SaveJob(ctx context.Context, job *domain.Job) error {
	result, err := s.db.ExecContext(ctx, queryUpdateJob, jobArgs(job)...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func jobArgs(job *domain.Job) []any {
	var endAt, withdrawAt any
	if job.EndAt != nil {
		endAt = *job.EndAt
	}
	if job.WithdrawAt != nil {
		withdrawAt = *job.WithdrawAt
	}
	return []any{
		job.ID,
		job.CustomerID,
		string(job.Status),
		job.Due,
		job.Immediate,
		job.FromLanguageID,
		job.Duration,
		string(job.Gender),
		string(job.Certified),
		string(job.JobType),
		job.CustomerPhoneAllowed,
		job.CustomerPhysicalAllowed,
		job.Town,
		job.AdminComments,
		job.Reference,
		job.Flagged,
		job.OverrideEmail,
		job.SessionTime,
		job.CreatedAt,
		job.WillExpireAt,
		endAt,
		withdrawAt,
		job.Cust16HourEmailSent,
		job.Cust48HourEmailSent,
	}
}

// CompareAndSwapStatus flips the status only if the stored value still
// matches expected. The guard sits in the WHERE clause, so concurrent
// accepts serialize on the row lock and exactly one write takes effect.
func (s *Store) CompareAndSwapStatus(ctx context.Context, jobID uuid.UUID, expected, next domain.Status) (bool, error) {
	result, err := s.db.ExecContext(ctx, queryCompareAndSwapStatus, jobID, string(expected), string(next))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PendingJobsByType returns all pending bookings of the given job type.
func (s *Store) PendingJobsByType(ctx context.Context, jobType domain.JobType) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, queryPendingJobsByType, string(jobType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ExpirePendingJobs flips pending bookings whose expiry has passed to
// timedout and returns the affected rows.
func (s *Store) ExpirePendingJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, queryExpirePendingJobs, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsDueForReminder returns assigned or started bookings due inside the
// window whose reminder has not gone out yet.
func (s *Store) JobsDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, queryJobsDueForReminder, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkReminderSent records that the session-start reminder went out.
func (s *Store) MarkReminderSent(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, queryMarkReminderSent, jobID)
	return err
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	var result []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateAssignment inserts a new assignment row.
func (s *Store) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	var cancelAt, completedAt, completedBy any
	if a.CancelAt != nil {
		cancelAt = *a.CancelAt
	}
	if a.CompletedAt != nil {
		completedAt = *a.CompletedAt
	}
	if a.CompletedBy != nil {
		completedBy = *a.CompletedBy
	}
	_, err := s.db.ExecContext(ctx, queryInsertAssignment,
		a.ID, a.JobID, a.TranslatorID, a.AssignedAt, cancelAt, completedAt, completedBy)
	return err
}

// CloseAssignment stamps cancel_at on a still-open assignment.
func (s *Store) CloseAssignment(ctx context.Context, assignmentID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, queryCloseAssignment, assignmentID, at)
	return err
}

// CompleteAssignment stamps completed_at and completed_by.
func (s *Store) CompleteAssignment(ctx context.Context, assignmentID uuid.UUID, at time.Time, by uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, queryCompleteAssignment, assignmentID, at, by)
	return err
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var a domain.Assignment
	var cancelAt, completedAt sql.NullTime
	var completedBy uuid.NullUUID
	err := row.Scan(&a.ID, &a.JobID, &a.TranslatorID, &a.AssignedAt, &cancelAt, &completedAt, &completedBy)
	if err != nil {
		return domain.Assignment{}, err
	}
	if cancelAt.Valid {
		a.CancelAt = &cancelAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if completedBy.Valid {
		a.CompletedBy = &completedBy.UUID
	}
	return a, nil
}

// ActiveAssignment returns the booking's live translator link, if any.
func (s *Store) ActiveAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, queryActiveAssignment, jobID))
	if err == sql.ErrNoRows {
		return domain.Assignment{}, false, nil
	}
	if err != nil {
		return domain.Assignment{}, false, err
	}
	return a, true, nil
}

// LatestAssignment returns the most recent assignment regardless of state.
func (s *Store) LatestAssignment(ctx context.Context, jobID uuid.UUID) (domain.Assignment, bool, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx, queryLatestAssignment, jobID))
	if err == sql.ErrNoRows {
		return domain.Assignment{}, false, nil
	}
	if err != nil {
		return domain.Assignment{}, false, err
	}
	return a, true, nil
}

// TranslatorBusyAt reports whether the translator already holds an active
// assignment for a booking due at the same minute.
func (s *Store) TranslatorBusyAt(ctx context.Context, translatorID uuid.UUID, due time.Time) (bool, error) {
	var busy bool
	err := s.db.QueryRowContext(ctx, queryTranslatorBusyAt, translatorID, due).Scan(&busy)
	return busy, err
}

// GetCustomerByID returns a customer by its ID.
func (s *Store) GetCustomerByID(ctx context.Context, customerID uuid.UUID) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, queryGetCustomerByID, customerID).Scan(
		&c.ID, &c.Name, &c.Email, &c.Town, &c.ConsumerType)
	if err == sql.ErrNoRows {
		return domain.Customer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

func scanTranslator(row rowScanner) (domain.TranslatorProfile, error) {
	var t domain.TranslatorProfile
	var langs pq.StringArray
	err := row.Scan(
		&t.ID, &t.Name, &t.Email, &t.Mobile,
		&t.Type, &t.Level, &t.Gender, &t.Town,
		&t.NoPush, &t.NoNightPush, &t.NoEmergencyPush, &t.NoDirectedJobs,
		&langs,
	)
	if err != nil {
		return domain.TranslatorProfile{}, err
	}
	for _, l := range langs {
		id, err := uuid.Parse(l)
		if err != nil {
			return domain.TranslatorProfile{}, err
		}
		t.Languages = append(t.Languages, id)
	}
	return t, nil
}

// GetTranslatorByID returns a translator profile with its languages.
func (s *Store) GetTranslatorByID(ctx context.Context, translatorID uuid.UUID) (domain.TranslatorProfile, error) {
	t, err := scanTranslator(s.db.QueryRowContext(ctx, queryGetTranslatorByID, translatorID))
	if err == sql.ErrNoRows {
		return domain.TranslatorProfile{}, domain.ErrNotFound
	}
	return t, err
}

// GetTranslatorByEmail resolves a translator by email address.
func (s *Store) GetTranslatorByEmail(ctx context.Context, email string) (domain.TranslatorProfile, error) {
	t, err := scanTranslator(s.db.QueryRowContext(ctx, queryGetTranslatorByEmail, email))
	if err == sql.ErrNoRows {
		return domain.TranslatorProfile{}, domain.ErrNotFound
	}
	return t, err
}

// ActiveTranslators returns the full active translator pool.
func (s *Store) ActiveTranslators(ctx context.Context) ([]domain.TranslatorProfile, error) {
	rows, err := s.db.QueryContext(ctx, queryActiveTranslators)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TranslatorProfile
	for rows.Next() {
		t, err := scanTranslator(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LanguageName resolves a language id to its display name.
func (s *Store) LanguageName(ctx context.Context, languageID uuid.UUID) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, queryLanguageName, languageID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	return name, err
}

// IsBlacklisted reports whether the customer has blocked the translator.
func (s *Store) IsBlacklisted(ctx context.Context, customerID, translatorID uuid.UUID) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, queryIsBlacklisted, customerID, translatorID).Scan(&blocked)
	return blocked, err
}

// SharesTown reports whether the customer and translator share a town.
func (s *Store) SharesTown(ctx context.Context, customerID, translatorID uuid.UUID) (bool, error) {
	var same bool
	err := s.db.QueryRowContext(ctx, querySharesTown, customerID, translatorID).Scan(&same)
	return same, err
}

// DirectedTo returns the translator a booking was explicitly offered to.
func (s *Store) DirectedTo(ctx context.Context, jobID uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, queryDirectedTo, jobID).Scan(&id)
	if err == sql.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Compile-time interface assertions
var (
	_ matching.Store   = (*Store)(nil)
	_ lifecycle.Store  = (*Store)(nil)
	_ assignment.Store = (*Store)(nil)
	_ booking.Store    = (*Store)(nil)
	_ notify.Store     = (*Store)(nil)
	_ sweeper.Store    = (*Store)(nil)
)
