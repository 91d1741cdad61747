package respond

import "strings"

// ErrorCode is the query pipeline error taxonomy. Raw errors are classified
// by message keywords with ExecutionFailed as the fallback.
type ErrorCode string

const (
	ErrParsingFailed    ErrorCode = "PARSING_FAILED"
	ErrExecutionFailed  ErrorCode = "EXECUTION_FAILED"
	ErrNoDataFound      ErrorCode = "NO_DATA_FOUND"
	ErrDatabase         ErrorCode = "DATABASE_ERROR"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrInvalidQuery     ErrorCode = "INVALID_QUERY"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// ClassifyError maps a raw error into the taxonomy by keyword inspection.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ErrExecutionFailed
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrTimeout
	case strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return ErrPermissionDenied
	case strings.Contains(msg, "database") || strings.Contains(msg, "connection"):
		return ErrDatabase
	case strings.Contains(msg, "parse") || strings.Contains(msg, "invalid"):
		return ErrParsingFailed
	case strings.Contains(msg, "no data") || strings.Contains(msg, "not found"):
		return ErrNoDataFound
	default:
		return ErrExecutionFailed
	}
}

// errorMessages maps each taxonomy entry to its fixed user-facing text.
var errorMessages = map[ErrorCode]string{
	ErrParsingFailed:    "I couldn't quite understand that question.",
	ErrExecutionFailed:  "Something went wrong while looking that up. Please try again.",
	ErrNoDataFound:      "I couldn't find any matching records.",
	ErrDatabase:         "I'm having trouble reaching your data right now. Please try again in a moment.",
	ErrTimeout:          "That took too long to answer. Try narrowing the question down.",
	ErrInvalidQuery:     "That question isn't something I can run against your data.",
	ErrPermissionDenied: "You don't have permission to see that data.",
}

// errorSuggestions maps each taxonomy entry to actionable follow-ups.
var errorSuggestions = map[ErrorCode][]string{
	ErrParsingFailed: {
		`Try "how many invoices do I have?"`,
		`Try "show documents from Acme"`,
		`Try "total spend last month"`,
	},
	ErrExecutionFailed: {
		"Try again in a moment",
		"Rephrase the question",
	},
	ErrNoDataFound: {
		"Widen the date range",
		"Check the vendor name spelling",
	},
	ErrDatabase: {
		"Try again in a moment",
	},
	ErrTimeout: {
		"Add a date range to narrow the search",
		"Ask for a count instead of a full list",
	},
	ErrInvalidQuery: {
		`Try "list recent documents"`,
		`Try "how many receipts this month?"`,
	},
	ErrPermissionDenied: {
		"Ask your tenant administrator for access",
	},
}

// ErrorMessage returns the fixed user-facing message for a code.
func ErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return errorMessages[ErrExecutionFailed]
}

// ErrorSuggestionList returns the actionable suggestions for a code.
func ErrorSuggestionList(code ErrorCode) []string {
	if s, ok := errorSuggestions[code]; ok {
		return s
	}
	return errorSuggestions[ErrExecutionFailed]
}
