package protocol

// Event names pushed from server to client.
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// EventRouteDecided is broadcast after every routed message
	// (payload: message_id, identifier, channel, path, handler, flow_id, reason).
	EventRouteDecided = "route.decided"

	// EventFlagsChanged is broadcast when the feature-flag snapshot is replaced.
	EventFlagsChanged = "flags.changed"

	// Cache invalidation events (internal, not forwarded to WS clients).
	EventCacheInvalidate = "cache.invalidate"
)

// Routing paths reported in route.decided.
const (
	PathNew    = "new"
	PathLegacy = "legacy"
)
