package constants

// Health and readiness endpoints; the remaining routes live in the router.
const (
	PathHealth = "/health"
	PathReady  = "/ready"
)
