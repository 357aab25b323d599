// Package core provides the domain model for the store import pipeline.
//
// It holds the types every other layer exchanges and no logic that needs
// transport or storage beyond pgtype conversions.
//
// # Lifecycle
//
// An [ImportJob] is created once per ingested source with all of its
// [ImportRow] values. Rows advance forward only:
//
//	pending -> valid | warning | error -> skipped | committed | error
//
// [CanAdvance] encodes this and every store implementation enforces it.
// Jobs leave the `validated` state exactly once, through the commit engine.
//
// # Template
//
// Rows are normalized into a [StoreRecord], a fixed set of template columns
// listed in [Columns]. The column order is the order used by exports.
// Matching keys are computed by [StoreRecord.Keys] in priority order:
// store URL, then owner phone, then owner email.
//
// # Error Handling
//
// Source problems are returned as [*SourceError] with a [SourceErrorKind].
// Commit lifecycle problems are sentinel errors ([ErrJobAlreadyFinalized],
// [ErrNoEligibleRows], ...). [MapError] turns any of them into a
// [UserMessage] with a support code.
package core
