package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	// EventJobCreated fans out to eligible translators (push + SMS) and
	// confirms the booking to the customer.
	EventJobCreated EventKind = "job_created"
	// EventJobReopened re-advertises a revived booking to the pool.
	EventJobReopened EventKind = "job_reopened"
	// EventJobAccepted confirms a translator acceptance to the customer.
	EventJobAccepted EventKind = "job_accepted"
	// EventJobCancelled informs the counterparty of a withdrawal.
	EventJobCancelled EventKind = "job_cancelled"
	// EventSessionEnded mails the session summary to customer and translator.
	EventSessionEnded EventKind = "session_ended"
	// EventSessionStartRemind reminds a single recipient shortly before due.
	EventSessionStartRemind EventKind = "session_start_remind"
	// EventTranslatorChanged, EventDateChanged and EventLanguageChanged are
	// emitted by the composite update, at most once each per update.
	EventTranslatorChanged EventKind = "translator_changed"
	EventDateChanged       EventKind = "date_changed"
	EventLanguageChanged   EventKind = "language_changed"
	// EventStatusChangedCustomer is the catch-all customer notice for
	// administrative status changes out of pending.
	EventStatusChangedCustomer EventKind = "status_changed_customer"
	// EventBookingConfirmed mails the booking confirmation once the
	// customer registered contact details.
	EventBookingConfirmed EventKind = "booking_confirmed"
)

// NotificationEvent is the ephemeral value handed from a committed state
// transition to the dispatcher. It is produced after the transition is
// durably saved and is never persisted itself.
type NotificationEvent struct {
	Kind EventKind
	Job  Snapshot

	// Recipients carries explicitly targeted user ids. Broadcast events
	// (job_created, job_reopened) leave it empty and let the dispatcher
	// compute the eligible pool, excluding ExcludeTranslator.
	Recipients        []uuid.UUID
	ExcludeTranslator uuid.UUID

	// Pre-update values captured by the composite update.
	OldDue          time.Time
	OldLanguageID   uuid.UUID
	OldTranslatorID uuid.UUID
	NewTranslatorID uuid.UUID

	SessionTime string // "H tim M min", session_ended only

	// ByCustomer distinguishes who cancelled for job_cancelled wording.
	ByCustomer bool

	CreatedAt time.Time
}
