package models

// Ingestion job lifecycle. Terminal states are final; a job is never resumed,
// only superseded by a new job record.
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

const (
	JobTypeFullSync       = "full-sync"
	JobTypeDelta          = "delta"
	JobTypeScheduledFull  = "scheduled-full"
	JobTypeScheduledDelta = "scheduled-delta"
)

const (
	EventTypeProductViewed   = "product_viewed"
	EventTypeCartAbandoned   = "cart_abandoned"
	EventTypeCheckoutStarted = "checkout_started"
	EventTypeOrderCompleted  = "order_completed"
)

const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)
