package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/normalize"
)

// Report is the outcome of checking a table against a contract.
type Report struct {
	Status   domain.ValidationStatus
	Failures []string
	Warnings []string
}

// Messages returns failures then warnings, the order recorded on lineage events.
func (r *Report) Messages() []string {
	out := make([]string, 0, len(r.Failures)+len(r.Warnings))
	out = append(out, r.Failures...)
	return append(out, r.Warnings...)
}

// Err returns a VALIDATION_ERROR naming every failing column, or nil unless the status is fail.
func (r *Report) Err() error {
	if r.Status != domain.ValidationFail {
		return nil
	}
	return domain.NewValidationError("tabular contract failed: %s", strings.Join(r.Failures, "; "))
}

func (r *Report) fail(format string, args ...any) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks t against c. Structural problems (missing required columns, type
// mismatches, nulls in required columns, undeclared columns) fail; quality problems
// (null fraction, unexpected values, missing optional columns) warn.
func Validate(c *Contract, t *normalize.Table) *Report {
	r := &Report{}

	declared := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		declared[col.Name] = struct{}{}
	}
	if !c.AllowExtraColumns {
		for _, name := range t.Columns {
			if _, ok := declared[name]; !ok {
				r.fail("column %q is not declared in the contract", name)
			}
		}
	}

	rows := len(t.Rows)
	if rows == 0 {
		r.warn("table has no data rows")
	}

	for _, col := range c.Columns {
		cells, ok := t.Column(col.Name)
		if !ok {
			if col.Required {
				r.fail("required column %q is missing", col.Name)
			} else {
				r.warn("optional column %q is missing", col.Name)
			}
			continue
		}

		nulls := 0
		badRow := -1
		var unexpected []string
		allowed := allowedSet(col.AllowedValues)
		for i, cell := range cells {
			if cell == "" {
				nulls++
				continue
			}
			if badRow < 0 && !conforms(col.Type, cell) {
				badRow = i + 1
			}
			if allowed != nil {
				if _, ok := allowed[cell]; !ok && len(unexpected) < 3 {
					unexpected = append(unexpected, cell)
				}
			}
		}

		if badRow > 0 {
			r.fail("column %q expects %s values (row %d does not parse)", col.Name, col.Type, badRow)
		}
		if col.Required && nulls > 0 {
			r.fail("required column %q has %d null value(s)", col.Name, nulls)
		}
		if limit := nullLimit(c, col); limit != nil && rows > 0 {
			frac := float64(nulls) / float64(rows)
			if frac > *limit {
				r.warn("column %q null fraction %.2f exceeds %.2f", col.Name, frac, *limit)
			}
		}
		if len(unexpected) > 0 {
			r.warn("column %q has values outside allowed_values: %s", col.Name, strings.Join(unexpected, ", "))
		}
	}

	switch {
	case len(r.Failures) > 0:
		r.Status = domain.ValidationFail
	case len(r.Warnings) > 0:
		r.Status = domain.ValidationWarn
	default:
		r.Status = domain.ValidationPass
	}
	return r
}

func nullLimit(c *Contract, col Column) *float64 {
	if col.MaxNullFraction != nil {
		return col.MaxNullFraction
	}
	return c.MaxNullFraction
}

func allowedSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func conforms(t ColumnType, v string) bool {
	switch t {
	case TypeInteger:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	case TypeNumber:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case TypeBoolean:
		_, ok := parseBool(v)
		return ok
	case TypeDate:
		return isDate(v)
	default:
		return true
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

func isDate(v string) bool {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// InferType returns the narrowest type every non-null cell satisfies.
func InferType(cells []string) ColumnType {
	candidates := []ColumnType{TypeInteger, TypeNumber, TypeBoolean, TypeDate}
	for _, ct := range candidates {
		ok, seen := true, false
		for _, cell := range cells {
			if cell == "" {
				continue
			}
			seen = true
			if ct == TypeBoolean {
				l := strings.ToLower(cell)
				if l != "true" && l != "false" {
					ok = false
					break
				}
				continue
			}
			if !conforms(ct, cell) {
				ok = false
				break
			}
		}
		if ok && seen {
			return ct
		}
	}
	return TypeString
}

// Fingerprint is the SHA-256 of the table's "name:type" list in column order.
// Types are inferred from the data so drift is detected with or without a contract.
func Fingerprint(t *normalize.Table) string {
	parts := make([]string, len(t.Columns))
	for i, name := range t.Columns {
		cells, _ := t.Column(name)
		parts[i] = strings.ToLower(strings.TrimSpace(name)) + ":" + string(InferType(cells))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}

// Drifted reports whether cur differs from a previously recorded fingerprint.
// The first fingerprint recorded for a document never counts as drift.
func Drifted(prev, cur string) bool {
	return prev != "" && cur != "" && prev != cur
}
