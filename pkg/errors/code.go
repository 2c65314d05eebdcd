package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Challenge module errors
// 12000-12999: Progress module errors
// 13000-13999: Execution harness errors
// 14000-14999: Quiz module errors
// 15000-15999: Activity module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202
	LockFailed     ErrorCode = 10203

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Upstream errors (10400-10499)
	UpstreamError       ErrorCode = 10400
	UpstreamBadResponse ErrorCode = 10401
	QueueError          ErrorCode = 10402
	StorageError        ErrorCode = 10403

	// ========== Challenge Module Errors (11000-11999) ==========

	ChallengeNotFound         ErrorCode = 11000
	ChallengePoolExhausted    ErrorCode = 11001
	ChallengeGenerationFailed ErrorCode = 11002
	ChallengeInvalid          ErrorCode = 11003
	LanguageVariantMissing    ErrorCode = 11004

	// ========== Progress Module Errors (12000-12999) ==========

	ProgressNotFound     ErrorCode = 12000
	ProgressUpdateFailed ErrorCode = 12001
	InvalidDifficulty    ErrorCode = 12002
	InvalidUsername      ErrorCode = 12003

	// ========== Execution Harness Errors (13000-13999) ==========

	// Request (13000-13099)
	CodeTooLarge         ErrorCode = 13000
	LanguageNotSupported ErrorCode = 13001
	EmptyCode            ErrorCode = 13002
	HarnessBusy          ErrorCode = 13003

	// Run (13100-13199)
	ToolchainMissing   ErrorCode = 13100
	CompilationError   ErrorCode = 13101
	RuntimeFatal       ErrorCode = 13102
	ExecutionTimeout   ErrorCode = 13103
	InvalidToolOutput  ErrorCode = 13104
	FunctionNotFound   ErrorCode = 13105
	UnsupportedType    ErrorCode = 13106
	HarnessSystemError ErrorCode = 13107

	// ========== Quiz Module Errors (14000-14999) ==========

	QuestionNotFound         ErrorCode = 14000
	QuestionGenerationFailed ErrorCode = 14001
	QuestionInvalid          ErrorCode = 14002
	InvalidAnswerIndex       ErrorCode = 14003

	// ========== Activity Module Errors (15000-15999) ==========

	ActivityLogFailed     ErrorCode = 15000
	ActivityDuplicate     ErrorCode = 15001
	InvalidActivityAction ErrorCode = 15002
	InvalidActivityStatus ErrorCode = 15003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",
	LockFailed:     "Failed to acquire lock",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Upstream
	UpstreamError:       "Upstream service call failed",
	UpstreamBadResponse: "Upstream service returned an unusable response",
	QueueError:          "Message queue operation failed",
	StorageError:        "Object storage operation failed",

	// Challenge
	ChallengeNotFound:         "Challenge not found",
	ChallengePoolExhausted:    "No challenge matches the requested filters",
	ChallengeGenerationFailed: "Failed to generate challenge",
	ChallengeInvalid:          "Challenge definition is invalid",
	LanguageVariantMissing:    "Challenge has no variant for this language",

	// Progress
	ProgressNotFound:     "Progress not found",
	ProgressUpdateFailed: "Failed to update progress",
	InvalidDifficulty:    "Invalid difficulty",
	InvalidUsername:      "Invalid username",

	// Harness - request
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",
	EmptyCode:            "Code is empty",
	HarnessBusy:          "Execution capacity exhausted, please try again later",

	// Harness - run
	ToolchainMissing:   "Required compiler or interpreter is not installed",
	CompilationError:   "Compilation error",
	RuntimeFatal:       "Program crashed before producing results",
	ExecutionTimeout:   "Execution timed out",
	InvalidToolOutput:  "Test harness produced unreadable output",
	FunctionNotFound:   "Function not found",
	UnsupportedType:    "Return type is not supported by this language runner",
	HarnessSystemError: "Execution harness error",

	// Quiz
	QuestionNotFound:         "Question not found or expired",
	QuestionGenerationFailed: "Failed to generate question",
	QuestionInvalid:          "Generated question is invalid",
	InvalidAnswerIndex:       "Answer index must be between 0 and 3",

	// Activity
	ActivityLogFailed:     "Failed to log activity",
	ActivityDuplicate:     "Duplicate activity suppressed",
	InvalidActivityAction: "Invalid activity action",
	InvalidActivityStatus: "Invalid activity status",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == Forbidden:
		return 403
	case c == NotFound, c == ChallengeNotFound, c == ProgressNotFound, c == QuestionNotFound,
		c == ChallengePoolExhausted:
		return 404
	case c == TooManyRequests, c == HarnessBusy:
		return 429
	case c == ServiceUnavailable, c == ToolchainMissing:
		return 503
	case c == UpstreamError, c == UpstreamBadResponse:
		return 502
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CodeTooLarge, c == LanguageNotSupported, c == EmptyCode,
		c == InvalidDifficulty, c == InvalidUsername, c == InvalidAnswerIndex,
		c == InvalidActivityAction, c == InvalidActivityStatus, c == LanguageVariantMissing:
		return 400
	case c == CompilationError, c == RuntimeFatal, c == ExecutionTimeout,
		c == FunctionNotFound, c == UnsupportedType:
		return 422
	default:
		return 500
	}
}
