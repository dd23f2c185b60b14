package domain

import "time"

// FilterGlobal accepts a partner from any country.
const FilterGlobal = "GLOBAL"

// QueueEntry is a waiting-to-match record. Seq is assigned by the queue
// under its lock and orders the FIFO scan.
type QueueEntry struct {
	User       Identity
	Mode       Mode
	Filter     string
	EnqueuedAt time.Time
	Seq        uint64
}

// Compatible reports whether two entries may be paired: modes must be
// equal, and either side filters GLOBAL or the filters are the same.
// GLOBAL/GLOBAL, GLOBAL/US and US/US pair; US/FR never does.
func Compatible(a, b *QueueEntry) bool {
	if a.Mode != b.Mode {
		return false
	}
	return a.Filter == FilterGlobal || b.Filter == FilterGlobal || a.Filter == b.Filter
}
