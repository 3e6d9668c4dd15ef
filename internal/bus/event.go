package bus

import "time"

// Event kinds published inside the daemon. Subscribers filter by prefix,
// so "store." receives every store change and "sync." every sync outcome.
const (
	KindStoreChanged  = "store.changed"
	KindChannelState  = "channel.state"
	KindChannelFrame  = "channel.frame_dropped"
	KindSyncCompleted = "sync.kind_completed"
	KindSyncFailed    = "sync.kind_failed"
	KindAlert         = "alert.mutation_failed"
	KindSignedOut     = "session.signed_out"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
