package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth errors
// 12000-12999: Test-case data errors
// 13000-13999: Judge & SPJ errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10005
	Timeout             ErrorCode = 10006

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Auth Errors (11000-11999) ==========

	TokenVerificationFailed ErrorCode = 11000

	// ========== Test-case Data Errors (12000-12999) ==========

	TestCaseNotFound    ErrorCode = 12100
	TestCaseInvalid     ErrorCode = 12101
	TestCaseFetchFailed ErrorCode = 12102
	TestCaseCacheError  ErrorCode = 12103

	// ========== Judge & SPJ Errors (13000-13999) ==========

	// Judge (13100-13199)
	InvalidRequest       ErrorCode = 13100
	JudgeClientError     ErrorCode = 13101
	CompileError         ErrorCode = 13102
	LanguageNotSupported ErrorCode = 13103
	JudgeQueueFull       ErrorCode = 13104
	SandboxError         ErrorCode = 13105

	// SPJ (13300-13399)
	SPJCompileError ErrorCode = 13300
	SPJError        ErrorCode = 13301
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Auth
	TokenVerificationFailed: "Token verification failed",

	// Test-case data
	TestCaseNotFound:    "Test case set not found",
	TestCaseInvalid:     "Invalid test case data",
	TestCaseFetchFailed: "Failed to fetch test case set",
	TestCaseCacheError:  "Test case cache operation failed",

	// Judge
	InvalidRequest:       "Invalid judge request",
	JudgeClientError:     "Judge engine internal error",
	CompileError:         "Compilation failed",
	LanguageNotSupported: "Language configuration not supported",
	JudgeQueueFull:       "Judge queue is full, please try again later",
	SandboxError:         "Sandbox execution failed",

	// SPJ
	SPJCompileError: "Special judge compilation failed",
	SPJError:        "Special judge execution failed",
}

// errorKinds maps request-fatal error codes to the protocol-level
// error kind names exposed in the response envelope.
var errorKinds = map[ErrorCode]string{
	TokenVerificationFailed: "TokenVerificationFailed",
	InvalidRequest:          "InvalidRequest",
	InvalidParams:           "InvalidRequest",
	ValidationFailed:        "InvalidRequest",
	TestCaseNotFound:        "InvalidRequest",
	TestCaseInvalid:         "InvalidRequest",
	LanguageNotSupported:    "InvalidRequest",
	CompileError:            "CompileError",
	SPJCompileError:         "SPJCompileError",
	SPJError:                "SPJError",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Kind returns the protocol error kind name for the code.
// Codes without a dedicated kind map to JudgeClientError.
func (c ErrorCode) Kind() string {
	if kind, ok := errorKinds[c]; ok {
		return kind
	}
	return "JudgeClientError"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenVerificationFailed:
		return 401
	case c == NotFound, c == TestCaseNotFound:
		return 400
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return 503
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == InvalidRequest, c == LanguageNotSupported, c == TestCaseInvalid:
		return 400
	case c == CompileError, c == SPJCompileError:
		return 200
	default:
		return 500
	}
}
