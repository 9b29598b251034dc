package schema

import (
	"context"
	"errors"
	"fmt"

	atlas "ariga.io/atlas/sql/schema"
)

// Verify compares descriptors with the tables reported by insp. Missing
// tables and columns are errors; a nullable column mapped to a member
// that cannot hold NULL is a warning.
func Verify(ctx context.Context, insp atlas.Inspector, descs ...*Descriptor) (*ValidationResult, error) {
	result := &ValidationResult{}
	for _, d := range descs {
		for _, t := range d.Tables() {
			s, err := insp.InspectSchema(ctx, t.Schema, &atlas.InspectOptions{Tables: []string{t.Name}})
			if err != nil && !atlas.IsNotExistError(err) {
				return nil, fmt.Errorf("schema: inspecting %s: %w", t, err)
			}
			var tbl *atlas.Table
			if s != nil {
				tbl, _ = s.Table(t.Name)
			}
			if tbl == nil {
				result.Errors = append(result.Errors, &ValidationError{Entity: d.Name, Table: t.String(), Message: "table does not exist"})
				continue
			}
			verifyColumns(d, t, tbl, result)
		}
	}
	return result, nil
}

func verifyColumns(d *Descriptor, t Table, tbl *atlas.Table, result *ValidationResult) {
	for _, c := range d.Columns {
		if c.Table != t && !(c.Key && d.Inheritance == InheritSplitTable) {
			continue
		}
		ac, ok := tbl.Column(c.Name)
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{Entity: d.Name, Table: t.String(), Column: c.Name, Message: "column does not exist"})
			continue
		}
		if ac.Type != nil && ac.Type.Null && !c.Nullable && !c.Computed {
			result.Warnings = append(result.Warnings, &ValidationError{Entity: d.Name, Table: t.String(), Column: c.Name, Message: "column is nullable but its member is not"})
		}
	}
}

// ErrVerify is returned by VerifyErr when verification finds errors.
var ErrVerify = errors.New("schema: mapping does not match the database")

// VerifyErr is like Verify but returns an error wrapping ErrVerify when the
// result has errors.
func VerifyErr(ctx context.Context, insp atlas.Inspector, descs ...*Descriptor) error {
	res, err := Verify(ctx, insp, descs...)
	if err != nil {
		return err
	}
	if res.HasErrors() {
		return fmt.Errorf("%w:\n%s", ErrVerify, res)
	}
	return nil
}
