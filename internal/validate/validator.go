// Package validate converts raw source rows into normalized store records.
//
// Validation is a pure transform: no network or database access. Every
// row is validated independently, so [ValidateAll] fans rows out across
// workers and reassembles the results in row order.
//
// A row's verdict is:
//   - error: at least one blocking issue (unusable url/email, no identifier)
//   - warning: non-blocking issues, or values the validator corrected
//   - valid: nothing to report
//
// Filling an empty priority or status with its default is recorded as an
// autofix but does not by itself make a row a warning.
package validate

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/storeimport/internal/core"
	"github.com/JonMunkholm/storeimport/internal/schema"
)

// Default mobile rules: Saudi numbers, +966 5XXXXXXXX.
const (
	DefaultCountryCode  = "966"
	DefaultMobilePrefix = "5"
	DefaultMobileDigits = 9
)

// JobContext carries per-job facts shared by every row.
type JobContext struct {
	JobID   string
	Mapping map[string]string // source header -> template column
	Ignored []string          // source headers outside the template
}

// NewJobContext resolves source headers against the template.
func NewJobContext(jobID string, headers []string) JobContext {
	mapping, ignored := schema.HeaderMap(headers)
	return JobContext{JobID: jobID, Mapping: mapping, Ignored: ignored}
}

// Outcome is the validation result for one row.
type Outcome struct {
	Normalized core.StoreRecord
	Status     core.RowStatus
	Errors     []core.Issue
	Warnings   []core.Issue
	Autofixes  []core.Autofix
	Keys       core.DedupKeys
}

// Validator applies the store template field rules.
type Validator struct {
	CountryCode  string
	MobilePrefix string
	MobileDigits int
}

// NewValidator creates a validator with the default mobile rules.
func NewValidator() *Validator {
	return &Validator{
		CountryCode:  DefaultCountryCode,
		MobilePrefix: DefaultMobilePrefix,
		MobileDigits: DefaultMobileDigits,
	}
}

// Validate normalizes one raw row.
func (v *Validator) Validate(raw core.RawRow, jc JobContext) Outcome {
	cells := make(map[string]string, len(schema.StoreFieldSpecs))
	for header, value := range raw {
		if col, ok := jc.Mapping[header]; ok {
			cells[col] = value
		}
	}

	var out Outcome
	for _, spec := range schema.StoreFieldSpecs {
		res := v.normalizeField(spec, cells[spec.Name])
		out.Normalized.Set(spec.Name, res.value)
		out.Autofixes = append(out.Autofixes, res.fixes...)
		out.Errors = append(out.Errors, res.errors...)
		out.Warnings = append(out.Warnings, res.warnings...)
	}

	if out.Normalized.StoreURL == "" && out.Normalized.OwnerPhone == "" && out.Normalized.OwnerEmail == "" {
		out.Errors = append(out.Errors, core.Issue{
			Field:   core.ColStoreURL,
			Message: "no identifying field: store_url, owner_phone and owner_email are all empty",
		})
	}

	out.Keys = out.Normalized.Keys()
	out.Status = verdict(out)
	return out
}

// ApplyAutofix records a correction made after validation, such as a store
// name filled in by enrichment, and re-derives the verdict.
func (o *Outcome) ApplyAutofix(field, action, value string) {
	old := o.Normalized.Get(field)
	if old == value {
		return
	}
	o.Normalized.Set(field, value)
	o.Autofixes = append(o.Autofixes, core.Autofix{Field: field, Action: action, OldValue: old, NewValue: value})
	o.Keys = o.Normalized.Keys()
	o.Status = verdict(*o)
}

func verdict(o Outcome) core.RowStatus {
	if len(o.Errors) > 0 {
		return core.RowError
	}
	if len(o.Warnings) > 0 {
		return core.RowWarning
	}
	for _, fix := range o.Autofixes {
		if fix.Action != FixDefaulted {
			return core.RowWarning
		}
	}
	return core.RowValid
}

// ValidateAll validates rows in parallel with at most workers goroutines.
// Outcomes are returned in input order, then in-file duplicates are flagged.
func (v *Validator) ValidateAll(ctx context.Context, rows []core.RawRow, jc JobContext, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outcomes := make([]Outcome, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = v.Validate(rows[i], jc)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate rows: %w", err)
	}

	MarkDuplicates(outcomes)
	return outcomes, nil
}

// MarkDuplicates flags rows whose matching key repeats an earlier row.
// The earliest row sharing the first-priority key is reported; both rows
// still resolve to one store at commit.
func MarkDuplicates(outcomes []Outcome) {
	byURL := make(map[string]int)
	byPhone := make(map[string]int)
	byEmail := make(map[string]int)

	for i := range outcomes {
		o := &outcomes[i]
		if o.Status == core.RowError {
			continue
		}

		rowIndex := i + 1
		field, first := "", 0
		switch {
		case o.Keys.URL != "" && byURL[o.Keys.URL] > 0:
			field, first = core.ColStoreURL, byURL[o.Keys.URL]
		case o.Keys.Phone != "" && byPhone[o.Keys.Phone] > 0:
			field, first = core.ColOwnerPhone, byPhone[o.Keys.Phone]
		case o.Keys.Email != "" && byEmail[o.Keys.Email] > 0:
			field, first = core.ColOwnerEmail, byEmail[o.Keys.Email]
		}

		if o.Keys.URL != "" && byURL[o.Keys.URL] == 0 {
			byURL[o.Keys.URL] = rowIndex
		}
		if o.Keys.Phone != "" && byPhone[o.Keys.Phone] == 0 {
			byPhone[o.Keys.Phone] = rowIndex
		}
		if o.Keys.Email != "" && byEmail[o.Keys.Email] == 0 {
			byEmail[o.Keys.Email] = rowIndex
		}

		if first == 0 {
			continue
		}
		o.Warnings = append(o.Warnings, core.Issue{
			Field:   field,
			Message: fmt.Sprintf("duplicate of row %d", first),
			Value:   o.Normalized.Get(field),
		})
		o.Status = verdict(*o)
	}
}
