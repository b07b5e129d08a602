package domain

import "github.com/google/uuid"

// ConsumerType drives which job type a customer's bookings get.
type ConsumerType string

const (
	ConsumerRWS     ConsumerType = "rwsconsumer"
	ConsumerNGO     ConsumerType = "ngo"
	ConsumerDefault ConsumerType = "paid"
)

// Customer is the read-only view of a booking customer. Account
// management lives outside this service.
type Customer struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Town         string
	ConsumerType ConsumerType
}

// JobTypeForConsumer maps a customer's consumer type to the job type of
// their bookings.
func JobTypeForConsumer(c ConsumerType) JobType {
	switch c {
	case ConsumerRWS:
		return JobTypeRWS
	case ConsumerNGO:
		return JobTypeUnpaid
	default:
		return JobTypePaid
	}
}
