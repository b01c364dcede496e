package utils

// Pagination constants
const (
	// DefaultPageSize is the page size used when the caller omits one
	DefaultPageSize = 20

	// MaxPageSize bounds the page size a caller may request
	MaxPageSize = 100
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
