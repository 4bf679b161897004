package errors

import "net/http"

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: User module errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Judge module errors
// 14000-14999: Video solution errors
// 16000-16999: Permission errors

const (
	// ========== System & Common Errors (10000-10999) ==========

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
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage & messaging (10400-10499)
	StorageError ErrorCode = 10400
	QueueError   ErrorCode = 10401

	// ========== User Module Errors (11000-11999) ==========

	// Authentication (11000-11099)
	InvalidCredentials    ErrorCode = 11000
	UserNotFound          ErrorCode = 11001
	TokenExpired          ErrorCode = 11003
	TokenInvalid          ErrorCode = 11004
	TokenGenerationFailed ErrorCode = 11005

	// Registration (11100-11199)
	UsernameAlreadyExists ErrorCode = 11100
	InvalidUsername       ErrorCode = 11102
	InvalidPassword       ErrorCode = 11104
	PasswordTooWeak       ErrorCode = 11105

	// User operations (11200-11299)
	AccountSuspended ErrorCode = 11203

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound     ErrorCode = 12000
	ProblemCreateFailed ErrorCode = 12002
	ProblemUpdateFailed ErrorCode = 12003
	ProblemDeleteFailed ErrorCode = 12004

	// Test cases & reference solutions (12100-12199)
	TestCaseInvalid          ErrorCode = 12102
	ReferenceSolutionInvalid ErrorCode = 12104

	// ========== Submission & Judge Module Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	SubmitTooFrequently    ErrorCode = 13004
	SubmissionInProgress   ErrorCode = 13005

	// Judge (13100-13199)
	JudgeQueueFull   ErrorCode = 13100
	JudgeSystemError ErrorCode = 13101
	JudgeUnavailable ErrorCode = 13107
	JudgeTimeout     ErrorCode = 13108

	// ========== Video Solution Errors (14000-14999) ==========

	VideoNotFound     ErrorCode = 14000
	VideoUploadFailed ErrorCode = 14001
	VideoTooLarge     ErrorCode = 14002

	// ========== Permission Errors (16000-16999) ==========

	PermissionDenied ErrorCode = 16000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError: "Cache operation failed",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	StorageError: "Object storage operation failed",
	QueueError:   "Message queue operation failed",

	InvalidCredentials:    "Invalid username or password",
	UserNotFound:          "User not found",
	TokenExpired:          "Token has expired",
	TokenInvalid:          "Invalid token",
	TokenGenerationFailed: "Failed to generate token",

	UsernameAlreadyExists: "Username already exists",
	InvalidUsername:       "Invalid username format",
	InvalidPassword:       "Invalid password format",
	PasswordTooWeak:       "Password is too weak",

	AccountSuspended: "Account has been suspended",

	ProblemNotFound:     "Problem not found",
	ProblemCreateFailed: "Failed to create problem",
	ProblemUpdateFailed: "Failed to update problem",
	ProblemDeleteFailed: "Failed to delete problem",

	TestCaseInvalid:          "Invalid test case format",
	ReferenceSolutionInvalid: "Reference solution did not pass all test cases",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	SubmissionInProgress:   "Submission with this key is still being judged",

	JudgeQueueFull:   "Judge is busy, please try again later",
	JudgeSystemError: "Judge system error",
	JudgeUnavailable: "Judge service is unavailable",
	JudgeTimeout:     "Judge did not finish in time",

	VideoNotFound:     "Video solution not found",
	VideoUploadFailed: "Failed to upload video solution",
	VideoTooLarge:     "Video file is too large",

	PermissionDenied: "Permission denied",
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
		return http.StatusOK
	case c == InvalidCredentials, c == Unauthorized, c == TokenExpired, c == TokenInvalid:
		return http.StatusUnauthorized
	case c == Forbidden, c == AccountSuspended, c >= 16000 && c < 17000:
		return http.StatusForbidden
	case c == NotFound, c == UserNotFound, c == ProblemNotFound, c == SubmissionNotFound, c == VideoNotFound:
		return http.StatusNotFound
	case c == UsernameAlreadyExists, c == RecordAlreadyExists, c == SubmissionInProgress:
		return http.StatusConflict
	case c == TooManyRequests, c == SubmitTooFrequently:
		return http.StatusTooManyRequests
	case c == JudgeUnavailable:
		return http.StatusBadGateway
	case c == ServiceUnavailable, c == JudgeQueueFull:
		return http.StatusServiceUnavailable
	case c == JudgeTimeout, c == Timeout:
		return http.StatusGatewayTimeout
	case c >= 10300 && c < 10400: // Validation errors
		return http.StatusBadRequest
	case c == InvalidParams, c == InvalidUsername, c == InvalidPassword, c == PasswordTooWeak,
		c == TestCaseInvalid, c == ReferenceSolutionInvalid, c == CodeTooLarge,
		c == LanguageNotSupported, c == VideoTooLarge:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
