package redisx

import "time"

const (
	// Order creation replay: idem:checkout:create:{gateway}:{idempotency_key} -> order json
	KeyIdemOrderCreate = "idem:checkout:create:%s:%s"

	// One-shot claims: dedup:{scope}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
