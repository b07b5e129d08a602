package domain

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links a job to the translator currently (or formerly)
// responsible for it. For a given job at most one assignment may have
// both CancelAt and CompletedAt unset: the active assignment.
//
// Reassignment never rewrites an active row; the old row is closed
// (CancelAt set) and a new row is created, preserving full history.
type Assignment struct {
	ID           uuid.UUID
	JobID        uuid.UUID
	TranslatorID uuid.UUID

	AssignedAt  time.Time
	CancelAt    *time.Time
	CompletedAt *time.Time
	CompletedBy *uuid.UUID
}

// Active reports whether this assignment is the job's live translator link.
func (a *Assignment) Active() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}
