package constants

// Handler constants
const (
	// DefaultAttendancePageSize is the number of attendance rows returned when no limit is given
	DefaultAttendancePageSize = 100

	// MaxAttendancePageSize caps the limit query parameter
	MaxAttendancePageSize = 1000

	// MaxRequestBodySize is the maximum accepted JSON body (frames are sent as base64)
	MaxRequestBodySize = 10 << 20
)
