package store

import "time"

// Record is the durable form of one entity store: an opaque JSON payload
// plus the store's sync cursor.
type Record struct {
	Namespace string
	Payload   []byte
	Cursor    *time.Time
	UpdatedAt time.Time
}

// MediaSlot maps a logical media slot to the file downloaded for it.
type MediaSlot struct {
	Slot      string
	SourceURL string
	LocalPath string
	UpdatedAt time.Time
}
