package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by topic
// prefix, so "queue." matches every queue event.
const (
	KindNetOnline  = "net.online"
	KindNetOffline = "net.offline"

	KindQueueEnqueued = "queue.enqueued"
	KindQueueSent     = "queue.sent"
	KindQueueFailed   = "queue.failed"
	KindQueueDrained  = "queue.drained"
	KindQueueRetried  = "queue.retried"

	KindSyncStarted  = "sync.started"
	KindSyncFinished = "sync.finished"
	KindSyncFailed   = "sync.failed"

	KindStatusChanged = "status.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
