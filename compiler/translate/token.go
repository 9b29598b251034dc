package translate

import (
	"fmt"
	"slices"

	"github.com/syssam/batchql"
	"github.com/syssam/batchql/compiler/ir"
	ql "github.com/syssam/batchql/querylanguage"
	"github.com/syssam/batchql/schema"
	"github.com/syssam/batchql/schema/field"
)

// TokenPolicy decides how updates treat application-managed concurrency
// tokens. Tokens maintained by the database are never written.
type TokenPolicy uint8

const (
	// TokenAuto increments unassigned numeric tokens by one and rejects
	// updates leaving other tokens unassigned.
	TokenAuto TokenPolicy = iota
	// TokenExplicit requires every token to be assigned by the caller.
	TokenExplicit
)

var policyNames = [...]string{
	TokenAuto:     "auto",
	TokenExplicit: "explicit",
}

func (p TokenPolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("token_policy(%d)", uint8(p))
}

// ParseTokenPolicy parses "auto" or "explicit". The empty string is auto.
func ParseTokenPolicy(s string) (TokenPolicy, error) {
	switch s {
	case "", "auto":
		return TokenAuto, nil
	case "explicit":
		return TokenExplicit, nil
	}
	return TokenAuto, fmt.Errorf("batchql: unknown token policy %q", s)
}

// checkAssignments rejects writes to computed and key columns and applies
// the token policy. It returns assigns with the generated token
// assignments appended.
func checkAssignments(d *schema.Descriptor, assigns []*ir.Assignment, policy TokenPolicy) ([]*ir.Assignment, error) {
	if len(assigns) == 0 {
		return nil, unsupported("update", "no assignments")
	}
	assigned := make(map[*schema.Column]bool, len(assigns))
	for _, a := range assigns {
		switch c := a.Column; {
		case c.Computed:
			return nil, batchql.NewComputedColumnWriteError(d.Name, c.Name)
		case c.Key:
			return nil, batchql.NewKeyColumnWriteError(d.Name, c.Name)
		}
		assigned[a.Column] = true
	}
	out := slices.Clone(assigns)
	for _, c := range d.TokenColumns() {
		if c.Computed || assigned[c] || c.Table != d.Table {
			continue
		}
		if policy == TokenExplicit {
			return nil, batchql.NewConcurrencyTokenError(d.Name, c.Name, "token must be assigned")
		}
		if c.HasConverter() || !c.Type.Numeric() {
			return nil, batchql.NewConcurrencyTokenError(d.Name, c.Name, fmt.Sprintf("%s token must be assigned", c.Type))
		}
		one, err := field.Coerce(c.Type, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, &ir.Assignment{
			Column: c,
			X:      &ir.Arith{Op: ql.OpAdd, X: &ir.Column{Column: c}, Y: &ir.Const{V: one}},
		})
	}
	return out, nil
}
