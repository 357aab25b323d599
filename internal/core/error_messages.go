package core

// error_messages.go maps errors to user-facing messages with codes for support reference.
//
// Error codes are grouped by category:
//
//	SRC001-SRC099  Source errors (file or shared-document problems; no job is created)
//	COM001-COM099  Commit errors (job lifecycle and commit procedure)
//	EXP001-EXP099  Export errors
//	DB001-DB099    Database errors matched by pattern
//	UPL001-UPL099  Request errors (cancelled, timeout, busy)
//	ERR000         Fallback when nothing matches
//
// Typed errors (SourceError, CommitProcedureError, sentinel errors) are matched
// first via errors.Is/As. Untyped errors fall back to case-insensitive
// substring patterns; the first matching pattern wins.

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var sourceMessages = map[SourceErrorKind]UserMessage{
	EmptyOrInvalidFile: {
		Message: "The file is empty or could not be read",
		Action:  "Upload a file with a header row and at least one data row",
		Code:    "SRC001",
	},
	InvalidSourceURL: {
		Message: "The link is not a valid shared spreadsheet link",
		Action:  "Copy the share link of the spreadsheet and try again",
		Code:    "SRC002",
	},
	NotPubliclyShared: {
		Message: "The spreadsheet is not shared publicly",
		Action:  "Set sharing to \"Anyone with the link can view\" and try again",
		Code:    "SRC003",
	},
	SourceNotFound: {
		Message: "The spreadsheet could not be found",
		Action:  "Check that the link is correct and the document still exists",
		Code:    "SRC004",
	},
	RequiresAuthentication: {
		Message: "The spreadsheet requires signing in to view",
		Action:  "Share the document publicly or upload an exported file instead",
		Code:    "SRC005",
	},
	SourceUnreachable: {
		Message: "The spreadsheet could not be downloaded",
		Action:  "Try again in a few moments",
		Code:    "SRC006",
	},
	UnsupportedFormat: {
		Message: "This file type is not supported",
		Action:  "Upload a CSV, TSV or Excel (.xlsx) file",
		Code:    "SRC007",
	},
	FileTooLarge: {
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller files",
		Code:    "SRC008",
	},
}

// sentinelMessage pairs a sentinel error with its user message and HTTP status.
type sentinelMessage struct {
	err    error
	msg    UserMessage
	status int
}

var sentinelMessages = []sentinelMessage{
	{
		err:    ErrJobNotFound,
		msg:    UserMessage{Message: "Import job not found", Action: "Check the job ID", Code: "COM001"},
		status: http.StatusNotFound,
	},
	{
		err:    ErrJobAlreadyFinalized,
		msg:    UserMessage{Message: "This import has already been committed", Action: "Start a new import to apply more changes", Code: "COM002"},
		status: http.StatusConflict,
	},
	{
		err:    ErrJobInFailedState,
		msg:    UserMessage{Message: "This import failed and cannot be committed again", Action: "Download the error report and start a new import", Code: "COM003"},
		status: http.StatusConflict,
	},
	{
		err:    ErrNoEligibleRows,
		msg:    UserMessage{Message: "No rows are eligible for commit", Action: "Fix the rows in the error report and re-upload", Code: "COM004"},
		status: http.StatusUnprocessableEntity,
	},
	{
		err:    ErrTooManyCommits,
		msg:    UserMessage{Message: "System busy: Too many commits in progress", Action: "Please wait a moment and try again", Code: "UPL002"},
		status: http.StatusServiceUnavailable,
	},
	{
		err:    ErrUnknownExportFormat,
		msg:    UserMessage{Message: "Unknown export format", Action: "Use corrected, errors_excel or errors_json", Code: "EXP001"},
		status: http.StatusBadRequest,
	},
	{
		err:    context.Canceled,
		msg:    UserMessage{Message: "Request was cancelled", Action: "Please try again", Code: "UPL004"},
		status: 499,
	},
	{
		err:    context.DeadlineExceeded,
		msg:    UserMessage{Message: "Request timed out", Action: "Try a smaller file or try again later", Code: "UPL005"},
		status: http.StatusGatewayTimeout,
	},
}

var procedureMessage = UserMessage{
	Message: "The commit was rolled back; no stores were changed",
	Action:  "Download the error report and contact support with the code",
	Code:    "COM005",
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A store with this identifier already exists",
			Action:  "Download the error report to review duplicates",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Contact support",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "UPL001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "UPL003",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if kind, ok := SourceErrorKindOf(err); ok {
		if msg, ok := sourceMessages[kind]; ok {
			return msg
		}
	}

	var pe *CommitProcedureError
	if errors.As(err, &pe) {
		return procedureMessage
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// HTTPStatus returns the response status that best describes err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if kind, ok := SourceErrorKindOf(err); ok {
		switch kind {
		case FileTooLarge:
			return http.StatusRequestEntityTooLarge
		case UnsupportedFormat:
			return http.StatusUnsupportedMediaType
		case SourceUnreachable:
			return http.StatusBadGateway
		default:
			return http.StatusUnprocessableEntity
		}
	}

	var pe *CommitProcedureError
	if errors.As(err, &pe) {
		return http.StatusInternalServerError
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.status
		}
	}

	return http.StatusInternalServerError
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
