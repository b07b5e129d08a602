package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusAssigned            Status = "assigned"
	StatusStarted             Status = "started"
	StatusCompleted           Status = "completed"
	StatusWithdrawBefore24    Status = "withdrawbefore24"
	StatusWithdrawAfter24     Status = "withdrawafter24"
	StatusTimedout            Status = "timedout"
	StatusNotCarriedOutByCust Status = "not_carried_out_customer"
)

type JobType string

const (
	JobTypePaid   JobType = "paid"
	JobTypeRWS    JobType = "rws"
	JobTypeUnpaid JobType = "unpaid"
)

type Gender string

const (
	GenderNone   Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Certification is the certification requirement a customer places on a
// booking. The historical wire values ("yes", "n_law", ...) are preserved.
type Certification string

const (
	CertificationNone    Certification = ""
	CertificationYes     Certification = "yes"
	CertificationBoth    Certification = "both"
	CertificationLaw     Certification = "law"
	CertificationNLaw    Certification = "n_law"
	CertificationHealth  Certification = "health"
	CertificationNHealth Certification = "n_health"
	CertificationNormal  Certification = "normal"
)

// Job is a single interpreting booking. Jobs are created in StatusPending
// and are never physically deleted; terminal statuses are kept for history.
type Job struct {
	ID         uuid.UUID
	CustomerID uuid.UUID

	Status         Status
	Due            time.Time
	Immediate      bool
	FromLanguageID uuid.UUID
	Duration       int // minutes

	Gender    Gender
	Certified Certification
	JobType   JobType

	CustomerPhoneAllowed    bool
	CustomerPhysicalAllowed bool
	Town                    string

	AdminComments string
	Reference     string
	Flagged       bool

	// OverrideEmail, when set, replaces the customer's account email for
	// all booking correspondence.
	OverrideEmail string

	SessionTime string // elapsed "H:MM:SS", set on completion

	CreatedAt    time.Time
	WillExpireAt time.Time
	EndAt        *time.Time
	WithdrawAt   *time.Time

	// Reminder email flags, reset when a booking re-enters the pending pool.
	Cust16HourEmailSent bool
	Cust48HourEmailSent bool
}

// Snapshot is the flattened, read-only view of a job handed to the
// notification dispatcher. DueDate and DueTime split the stored due
// timestamp on its single separating space.
type Snapshot struct {
	JobID           uuid.UUID
	FromLanguageID  uuid.UUID
	Immediate       bool
	Duration        int
	Status          Status
	Gender          Gender
	Certified       Certification
	Due             time.Time
	JobType         JobType
	PhoneAllowed    bool
	PhysicalAllowed bool
	CustomerTown    string
	OverrideEmail   string
	DueDate         string
	DueTime         string
	JobFor          []string
}

const dueLayout = "2006-01-02 15:04:05"

// ToSnapshot flattens the job for notification payloads.
func (j *Job) ToSnapshot() Snapshot {
	due := j.Due.Format(dueLayout)
	return Snapshot{
		JobID:           j.ID,
		FromLanguageID:  j.FromLanguageID,
		Immediate:       j.Immediate,
		Duration:        j.Duration,
		Status:          j.Status,
		Gender:          j.Gender,
		Certified:       j.Certified,
		Due:             j.Due,
		JobType:         j.JobType,
		PhoneAllowed:    j.CustomerPhoneAllowed,
		PhysicalAllowed: j.CustomerPhysicalAllowed,
		CustomerTown:    j.Town,
		OverrideEmail:   j.OverrideEmail,
		DueDate:         due[:10],
		DueTime:         due[11:],
		JobFor:          j.JobFor(),
	}
}

// JobFor renders the gender and certification requirements in the wording
// shown to translators.
func (j *Job) JobFor() []string {
	var out []string
	switch j.Gender {
	case GenderMale:
		out = append(out, "Man")
	case GenderFemale:
		out = append(out, "Kvinna")
	}
	switch j.Certified {
	case CertificationBoth:
		out = append(out, "normal", "certified")
	case CertificationYes:
		out = append(out, "certified")
	case CertificationNone:
	default:
		out = append(out, string(j.Certified))
	}
	return out
}

// Terminal reports whether the status ends the normal booking flow.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusWithdrawBefore24, StatusWithdrawAfter24, StatusNotCarriedOutByCust:
		return true
	}
	return false
}
