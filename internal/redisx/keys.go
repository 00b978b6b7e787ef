package redisx

import "time"

const (
	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Bearer session: sess:{token} -> principal JSON. TTL = masa berlaku token.
	KeySession = "sess:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache     = 5 * time.Minute
	TTLAdminSession    = 24 * time.Hour
	TTLCustomerSession = 7 * 24 * time.Hour
	TTLDedup           = 48 * time.Hour
)
