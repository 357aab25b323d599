package core

import (
	"errors"
	"fmt"
)

// Job and commit errors.
var (
	ErrJobNotFound         = errors.New("import job not found")
	ErrJobAlreadyFinalized = errors.New("import job already finalized")
	ErrJobInFailedState    = errors.New("import job is in failed state")
	ErrNoEligibleRows      = errors.New("no eligible rows to commit")
	ErrStatusRegression    = errors.New("row status cannot move backwards")
	ErrTooManyCommits      = errors.New("too many concurrent commits, please try again later")
	ErrUnknownExportFormat = errors.New("unknown export format")
)

// SourceErrorKind classifies why a source could not be ingested.
type SourceErrorKind string

const (
	EmptyOrInvalidFile     SourceErrorKind = "EmptyOrInvalidFile"
	InvalidSourceURL       SourceErrorKind = "InvalidSourceUrl"
	NotPubliclyShared      SourceErrorKind = "NotPubliclyShared"
	SourceNotFound         SourceErrorKind = "SourceNotFound"
	RequiresAuthentication SourceErrorKind = "RequiresAuthentication"
	SourceUnreachable      SourceErrorKind = "SourceUnreachable"
	UnsupportedFormat      SourceErrorKind = "UnsupportedFormat"
	FileTooLarge           SourceErrorKind = "FileTooLarge"
)

// SourceError aborts an ingestion before any job exists.
type SourceError struct {
	Kind   SourceErrorKind
	Detail string
	Cause  error
}

// NewSourceError creates a SourceError of the given kind.
func NewSourceError(kind SourceErrorKind, detail string, cause error) *SourceError {
	return &SourceError{Kind: kind, Detail: detail, Cause: cause}
}

func (e *SourceError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Is matches another SourceError of the same kind, so callers can write
// errors.Is(err, &SourceError{Kind: RequiresAuthentication}).
func (e *SourceError) Is(target error) bool {
	t, ok := target.(*SourceError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// SourceErrorKindOf returns the kind of a SourceError in err's chain.
func SourceErrorKindOf(err error) (SourceErrorKind, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// CommitProcedureError means the atomic procedure call failed outright and
// the batch was rolled back.
type CommitProcedureError struct {
	Detail string
	Cause  error
}

func (e *CommitProcedureError) Error() string {
	return "commit procedure failed: " + e.Detail
}

func (e *CommitProcedureError) Unwrap() error {
	return e.Cause
}
