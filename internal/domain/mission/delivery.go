// internal/domain/mission/delivery.go
package mission

import (
	"database/sql"
	"time"
)

// DeliveryStatus is the send state of one member's copy of a batch.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySending DeliveryStatus = "SENDING" // Claimed by one sender; no one else may email it
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// MemberDelivery tracks the email for one (member, batch) pair.
// Corresponds to the 'member_deliveries' table.
type MemberDelivery struct {
	ID        int64
	MemberID  int64
	BatchID   int64
	Status    DeliveryStatus
	SentAt    sql.NullTime // Set only when Status is SENT
	CreatedAt time.Time
}

func (d *MemberDelivery) IsPending() bool {
	return d.Status == DeliveryPending
}
