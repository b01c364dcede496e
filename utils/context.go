package utils

// ContextKey is the type for request-scoped context values
type ContextKey string

// Context keys carried from the transport layer into business flows
const (
	RequestIDKey ContextKey = "request_id"
	UserAgentKey ContextKey = "user_agent"
	IPAddressKey ContextKey = "ip_address"
	EndpointKey  ContextKey = "endpoint"
	TimeoutKey   ContextKey = "timeout"
	UserIDKey    ContextKey = "user_id"
)
