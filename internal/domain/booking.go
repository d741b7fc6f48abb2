package domain

import "time"

// BookingDto is the synchronous result of OrderFinalizing's finalizeOrder
// call: the booking id plus the set of item ids that could not be reserved.
type BookingDto struct {
	BookingID   string
	FailedItems map[string]struct{}
}

// HasFailures reports whether any item failed to book.
func (b BookingDto) HasFailures() bool {
	return len(b.FailedItems) > 0
}

// BookingLineStatus is the per-item outcome recorded in BookingLogRecord.
type BookingLineStatus string

const (
	BookingLineSuccess BookingLineStatus = "SUCCESS"
	BookingLineFailed  BookingLineStatus = "FAILED"
)

// BookingLogRecord is one line-item entry the harness may read back via
// getBookingHistory to audit a finalization.
type BookingLogRecord struct {
	BookingID string
	ItemID    string
	Status    BookingLineStatus
	Amount    int32
	Timestamp time.Time
}
