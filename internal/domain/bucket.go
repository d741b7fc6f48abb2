package domain

import "time"

// BucketLogRecord is one abandoned-cart audit entry: the target logs one of
// these whenever a customer interacts with (or is nudged about) a
// still-Collecting order. OrderAbandoned polls for the newest record.
type BucketLogRecord struct {
	TransactionID  string
	Timestamp      time.Time
	UserInteracted bool
}

// NewestBucketRecord returns the latest record by Timestamp, or false if the
// slice is empty.
func NewestBucketRecord(records []BucketLogRecord) (BucketLogRecord, bool) {
	var newest BucketLogRecord
	found := false
	for _, r := range records {
		if !found || r.Timestamp.After(newest.Timestamp) {
			newest = r
			found = true
		}
	}
	return newest, found
}
