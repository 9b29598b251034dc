package batchql

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched by the typed errors below through their Is methods.
var (
	// ErrUnmappedType is returned when a type has no resolvable mapping.
	ErrUnmappedType = errors.New("batchql: unmapped type")

	// ErrUnsupportedExpression is returned when an expression node falls outside
	// the translatable grammar.
	ErrUnsupportedExpression = errors.New("batchql: unsupported expression")

	// ErrUnmappedMember is returned when a member path or column name does not
	// resolve against the entity's descriptor.
	ErrUnmappedMember = errors.New("batchql: unmapped member")

	// ErrComputedColumnWrite is returned when an update assigns a computed column.
	ErrComputedColumnWrite = errors.New("batchql: write to computed column")

	// ErrKeyColumnWrite is returned when an update assigns a key column.
	ErrKeyColumnWrite = errors.New("batchql: write to key column")

	// ErrDialectUnsupported is returned when a translated construct has no
	// representation in the target dialect.
	ErrDialectUnsupported = errors.New("batchql: feature not supported by dialect")

	// ErrConcurrencyToken is returned when an update violates the configured
	// concurrency token policy.
	ErrConcurrencyToken = errors.New("batchql: concurrency token policy violated")

	// ErrCanceled is returned when execution is aborted by the caller's context.
	ErrCanceled = errors.New("batchql: operation canceled")
)

// UnmappedTypeError is returned when a type carries no mapping metadata.
type UnmappedTypeError struct {
	Type string // Go type or entity name that failed to resolve
}

// Error returns the error string.
func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("batchql: type %s is not mapped", e.Type)
}

// Is reports whether the target error matches ErrUnmappedType.
func (e *UnmappedTypeError) Is(err error) bool {
	return err == ErrUnmappedType
}

// NewUnmappedTypeError returns a new UnmappedTypeError.
func NewUnmappedTypeError(typ string) *UnmappedTypeError {
	return &UnmappedTypeError{Type: typ}
}

// IsUnmappedType returns true if the error is an UnmappedTypeError.
func IsUnmappedType(err error) bool {
	return err != nil && errors.Is(err, ErrUnmappedType)
}

// UnsupportedExpressionError is returned when an expression node is outside
// the supported grammar. Construct holds the printed form of the node.
type UnsupportedExpressionError struct {
	Construct string
	Reason    string
}

// Error returns the error string.
func (e *UnsupportedExpressionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("batchql: unsupported expression %s: %s", e.Construct, e.Reason)
	}
	return fmt.Sprintf("batchql: unsupported expression %s", e.Construct)
}

// Is reports whether the target error matches ErrUnsupportedExpression.
func (e *UnsupportedExpressionError) Is(err error) bool {
	return err == ErrUnsupportedExpression
}

// NewUnsupportedExpressionError returns a new UnsupportedExpressionError.
func NewUnsupportedExpressionError(construct, reason string) *UnsupportedExpressionError {
	return &UnsupportedExpressionError{Construct: construct, Reason: reason}
}

// IsUnsupportedExpression returns true if the error is an UnsupportedExpressionError.
func IsUnsupportedExpression(err error) bool {
	return err != nil && errors.Is(err, ErrUnsupportedExpression)
}

// UnmappedMemberError is returned when a referenced member or column does not
// exist on the entity.
type UnmappedMemberError struct {
	Entity string
	Member string
}

// Error returns the error string.
func (e *UnmappedMemberError) Error() string {
	return fmt.Sprintf("batchql: %s has no mapped member %q", e.Entity, e.Member)
}

// Is reports whether the target error matches ErrUnmappedMember.
func (e *UnmappedMemberError) Is(err error) bool {
	return err == ErrUnmappedMember
}

// NewUnmappedMemberError returns a new UnmappedMemberError.
func NewUnmappedMemberError(entity, member string) *UnmappedMemberError {
	return &UnmappedMemberError{Entity: entity, Member: member}
}

// IsUnmappedMember returns true if the error is an UnmappedMemberError.
func IsUnmappedMember(err error) bool {
	return err != nil && errors.Is(err, ErrUnmappedMember)
}

// ComputedColumnWriteError is returned when an update targets a computed column.
type ComputedColumnWriteError struct {
	Entity string
	Column string
}

// Error returns the error string.
func (e *ComputedColumnWriteError) Error() string {
	return fmt.Sprintf("batchql: column %q of %s is computed and cannot be assigned", e.Column, e.Entity)
}

// Is reports whether the target error matches ErrComputedColumnWrite.
func (e *ComputedColumnWriteError) Is(err error) bool {
	return err == ErrComputedColumnWrite
}

// NewComputedColumnWriteError returns a new ComputedColumnWriteError.
func NewComputedColumnWriteError(entity, column string) *ComputedColumnWriteError {
	return &ComputedColumnWriteError{Entity: entity, Column: column}
}

// IsComputedColumnWrite returns true if the error is a ComputedColumnWriteError.
func IsComputedColumnWrite(err error) bool {
	return err != nil && errors.Is(err, ErrComputedColumnWrite)
}

// KeyColumnWriteError is returned when an update targets a key column.
type KeyColumnWriteError struct {
	Entity string
	Column string
}

// Error returns the error string.
func (e *KeyColumnWriteError) Error() string {
	return fmt.Sprintf("batchql: column %q of %s is part of the key and cannot be assigned", e.Column, e.Entity)
}

// Is reports whether the target error matches ErrKeyColumnWrite.
func (e *KeyColumnWriteError) Is(err error) bool {
	return err == ErrKeyColumnWrite
}

// NewKeyColumnWriteError returns a new KeyColumnWriteError.
func NewKeyColumnWriteError(entity, column string) *KeyColumnWriteError {
	return &KeyColumnWriteError{Entity: entity, Column: column}
}

// IsKeyColumnWrite returns true if the error is a KeyColumnWriteError.
func IsKeyColumnWrite(err error) bool {
	return err != nil && errors.Is(err, ErrKeyColumnWrite)
}

// DialectUnsupportedFeatureError is returned when the target dialect cannot
// express a translated construct.
type DialectUnsupportedFeatureError struct {
	Dialect string
	Feature string
}

// Error returns the error string.
func (e *DialectUnsupportedFeatureError) Error() string {
	return fmt.Sprintf("batchql: dialect %s does not support %s", e.Dialect, e.Feature)
}

// Is reports whether the target error matches ErrDialectUnsupported.
func (e *DialectUnsupportedFeatureError) Is(err error) bool {
	return err == ErrDialectUnsupported
}

// NewDialectUnsupportedFeatureError returns a new DialectUnsupportedFeatureError.
func NewDialectUnsupportedFeatureError(dialect, feature string) *DialectUnsupportedFeatureError {
	return &DialectUnsupportedFeatureError{Dialect: dialect, Feature: feature}
}

// IsDialectUnsupported returns true if the error is a DialectUnsupportedFeatureError.
func IsDialectUnsupported(err error) bool {
	return err != nil && errors.Is(err, ErrDialectUnsupported)
}

// ConcurrencyTokenError is returned when an update leaves an application
// managed concurrency token in a state the token policy does not allow.
type ConcurrencyTokenError struct {
	Entity string
	Column string
	Reason string
}

// Error returns the error string.
func (e *ConcurrencyTokenError) Error() string {
	return fmt.Sprintf("batchql: concurrency token %q of %s: %s", e.Column, e.Entity, e.Reason)
}

// Is reports whether the target error matches ErrConcurrencyToken.
func (e *ConcurrencyTokenError) Is(err error) bool {
	return err == ErrConcurrencyToken
}

// NewConcurrencyTokenError returns a new ConcurrencyTokenError.
func NewConcurrencyTokenError(entity, column, reason string) *ConcurrencyTokenError {
	return &ConcurrencyTokenError{Entity: entity, Column: column, Reason: reason}
}

// IsConcurrencyToken returns true if the error is a ConcurrencyTokenError.
func IsConcurrencyToken(err error) bool {
	return err != nil && errors.Is(err, ErrConcurrencyToken)
}

// MappingError reports invalid mapping metadata, such as duplicate column
// names or an inheritance cycle.
type MappingError struct {
	Entity string
	Msg    string
}

// Error returns the error string.
func (e *MappingError) Error() string {
	if e.Entity == "" {
		return "batchql: invalid mapping: " + e.Msg
	}
	return fmt.Sprintf("batchql: invalid mapping for %s: %s", e.Entity, e.Msg)
}

// NewMappingError returns a new MappingError.
func NewMappingError(entity, format string, args ...any) *MappingError {
	return &MappingError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// IsMappingError returns true if the error is a MappingError.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var e *MappingError
	return errors.As(err, &e)
}

// OperationCanceledError is returned when the caller's context ends before
// or during execution. It unwraps to both the context error and the driver
// error, if any, so errors.Is(err, context.Canceled) holds.
type OperationCanceledError struct {
	Cause error // ctx.Err()
	Err   error // driver error observed while aborting, may be nil
}

// Error returns the error string.
func (e *OperationCanceledError) Error() string {
	if e.Err != nil && e.Err != e.Cause {
		return fmt.Sprintf("batchql: operation canceled: %v: %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("batchql: operation canceled: %v", e.Cause)
}

// Is reports whether the target error matches ErrCanceled.
func (e *OperationCanceledError) Is(err error) bool {
	return err == ErrCanceled
}

// Unwrap returns the context error and the driver error.
func (e *OperationCanceledError) Unwrap() []error {
	errs := []error{e.Cause}
	if e.Err != nil && e.Err != e.Cause {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewOperationCanceledError returns a new OperationCanceledError.
func NewOperationCanceledError(cause, err error) *OperationCanceledError {
	return &OperationCanceledError{Cause: cause, Err: err}
}

// IsCanceled returns true if the error is an OperationCanceledError.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, ErrCanceled)
}

// Constraint kinds reported by ExecutionError.
const (
	ConstraintUnique     = "unique"
	ConstraintForeignKey = "foreign_key"
	ConstraintCheck      = "check"
)

// ExecutionError wraps a driver or connection failure. Its message is the
// driver's message, unchanged.
type ExecutionError struct {
	Op         string // "delete" or "update"
	Constraint string // one of the Constraint kinds, or empty
	Err        error
}

// Error returns the underlying driver message.
func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError returns a new ExecutionError.
func NewExecutionError(op, constraint string, err error) *ExecutionError {
	return &ExecutionError{Op: op, Constraint: constraint, Err: err}
}

// IsExecutionError returns true if the error is an ExecutionError.
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ExecutionError
	return errors.As(err, &e)
}

// IsConstraintError returns true if the error is an ExecutionError caused by
// a constraint violation.
func IsConstraintError(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e) && e.Constraint != ""
}

// IsTranslationError reports whether err was raised before any SQL reached
// the database.
func IsTranslationError(err error) bool {
	switch {
	case err == nil:
		return false
	case IsUnmappedType(err), IsUnsupportedExpression(err), IsUnmappedMember(err),
		IsComputedColumnWrite(err), IsKeyColumnWrite(err), IsDialectUnsupported(err),
		IsConcurrencyToken(err), IsMappingError(err):
		return true
	default:
		return false
	}
}

// AggregateError collects the errors found while validating a mapping.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("batchql: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns nil if no non-nil errors are given, the single
// error if there is one, and an AggregateError otherwise.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
