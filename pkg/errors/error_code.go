package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 102
	ErrCodeInvalidEndpoint      ErrorCode = 103
	ErrCodeInvalidPreferences   ErrorCode = 104

	// Connection errors (200-299)
	ErrCodeConnectionFailed ErrorCode = 200
	ErrCodeNotConnected     ErrorCode = 201
	ErrCodeAlreadyStarted   ErrorCode = 202
	ErrCodeConnectionClosed ErrorCode = 203
	ErrCodeWriteFailed      ErrorCode = 204

	// Protocol errors (300-399)
	ErrCodeDecodeFailed       ErrorCode = 300
	ErrCodeUnknownMessageType ErrorCode = 301
	ErrCodeEncodeFailed       ErrorCode = 302

	// Dashboard errors (400-499)
	ErrCodeDashboardFailed ErrorCode = 400
	ErrCodeRenderFailed    ErrorCode = 401
)
