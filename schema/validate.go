package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a mapping validation finding.
type ValidationError struct {
	Entity  string
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Column != "" && e.Table != "":
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	case e.Column != "":
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Column, e.Message)
	case e.Table != "":
		return fmt.Sprintf("%s: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// ValidationResult holds the results of validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Merge appends the findings of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateDescriptor checks a descriptor for mapping mistakes. Errors make
// the descriptor unusable; warnings are reported and the descriptor is used.
func ValidateDescriptor(d *Descriptor) *ValidationResult {
	result := &ValidationResult{}
	errorf := func(column, format string, args ...any) {
		result.Errors = append(result.Errors, &ValidationError{Entity: d.Name, Column: column, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(column, format string, args ...any) {
		result.Warnings = append(result.Warnings, &ValidationError{Entity: d.Name, Column: column, Message: fmt.Sprintf(format, args...)})
	}

	if d.Table.Name == "" {
		errorf("", "entity has no table")
	}
	if len(d.Keys) == 0 {
		warnf("", "entity has no key")
	}

	// Column names are unique per table.
	seen := make(map[Table]map[string]bool)
	members := make(map[string]bool)
	for _, c := range d.Columns {
		if c.Name == "" {
			errorf(c.Ref(), "column has no name")
			continue
		}
		if seen[c.Table] == nil {
			seen[c.Table] = make(map[string]bool)
		}
		if seen[c.Table][c.Name] {
			errorf(c.Name, "duplicate column name")
		}
		seen[c.Table][c.Name] = true
		if !c.Shadow {
			if members[c.Member] {
				errorf(c.Name, "duplicate member %q", c.Member)
			}
			members[c.Member] = true
		}
		if !c.Type.Valid() {
			errorf(c.Name, "column has no valid type")
		}
		if c.Key && c.ConcurrencyToken {
			errorf(c.Name, "key column cannot be a concurrency token")
		}
		if c.ConcurrencyToken && !c.Computed && !c.StoreType().Numeric() {
			warnf(c.Name, "non-numeric concurrency token must be assigned by every update")
		}
	}

	if d.Discriminator != "" {
		if c, ok := d.Shadow(d.Discriminator); !ok {
			errorf(d.Discriminator, "discriminator column is not mapped")
		} else if c.Table != d.Table {
			errorf(d.Discriminator, "discriminator column is not in table %s", d.Table)
		}
	}
	return result
}
