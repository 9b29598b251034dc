package field

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// A Converter translates member values to the representation stored in the
// column, and back.
type Converter interface {
	// Name identifies the converter in mapping files and fingerprints.
	Name() string
	// StoreType returns the column type after conversion.
	StoreType() Type
	// ToStore converts a member value to its stored form.
	ToStore(v any) (any, error)
	// FromStore converts a stored value to its member form.
	FromStore(v any) (any, error)
}

// Convert returns a Converter from a pair of typed functions. Values whose
// dynamic type is convertible to L, such as an untyped int for a named
// integer type, are converted before calling to.
func Convert[L, S any](name string, store Type, to func(L) (S, error), from func(S) (L, error)) Converter {
	return &funcConverter[L, S]{name: name, store: store, to: to, from: from}
}

type funcConverter[L, S any] struct {
	name  string
	store Type
	to    func(L) (S, error)
	from  func(S) (L, error)
}

func (c *funcConverter[L, S]) Name() string    { return c.name }
func (c *funcConverter[L, S]) StoreType() Type { return c.store }

func (c *funcConverter[L, S]) ToStore(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	l, err := as[L](v)
	if err != nil {
		return nil, fmt.Errorf("field: converter %s: %w", c.name, err)
	}
	return c.to(l)
}

func (c *funcConverter[L, S]) FromStore(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := as[S](v)
	if err != nil {
		return nil, fmt.Errorf("field: converter %s: %w", c.name, err)
	}
	return c.from(s)
}

func as[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	rt := reflect.TypeOf(zero)
	rv := reflect.ValueOf(v)
	// Go converts integers to strings as runes; never do that here.
	textual := rv.Kind() == reflect.String
	if rt == nil || !rv.Type().ConvertibleTo(rt) || textual != (rt.Kind() == reflect.String) {
		return zero, fmt.Errorf("cannot use %T as %T", v, zero)
	}
	return rv.Convert(rt).Interface().(T), nil
}

// EnumString stores an integer enumeration as the name at its index.
func EnumString(names ...string) Converter {
	index := make(map[string]int64, len(names))
	for i, n := range names {
		index[n] = int64(i)
	}
	return Convert("enum_string", TypeString,
		func(v int64) (string, error) {
			if v < 0 || v >= int64(len(names)) {
				return "", fmt.Errorf("field: enum value %d out of range", v)
			}
			return names[v], nil
		},
		func(s string) (int64, error) {
			i, ok := index[s]
			if !ok {
				return 0, fmt.Errorf("field: unknown enum name %q", s)
			}
			return i, nil
		},
	)
}

// UUIDString stores a UUID in its canonical text form.
func UUIDString() Converter {
	return Convert("uuid_string", TypeString,
		func(id uuid.UUID) (string, error) { return id.String(), nil },
		func(s string) (uuid.UUID, error) { return uuid.Parse(s) },
	)
}

// UnixTime stores a time as seconds since the Unix epoch.
func UnixTime() Converter {
	return Convert("unix_time", TypeInt64,
		func(t time.Time) (int64, error) { return t.Unix(), nil },
		func(s int64) (time.Time, error) { return time.Unix(s, 0).UTC(), nil },
	)
}

// AddDays stores a time shifted by n days.
func AddDays(n int) Converter {
	return Convert("add_days:"+strconv.Itoa(n), TypeTime,
		func(t time.Time) (time.Time, error) { return t.AddDate(0, 0, n), nil },
		func(s time.Time) (time.Time, error) { return s.AddDate(0, 0, -n), nil },
	)
}

// LookupConverter returns the built-in converter with the given name, as
// written in mapping files.
func LookupConverter(name string, args ...string) (Converter, error) {
	switch name {
	case "enum_string":
		if len(args) == 0 {
			return nil, fmt.Errorf("field: enum_string requires the enum names")
		}
		return EnumString(args...), nil
	case "uuid_string":
		return UUIDString(), nil
	case "unix_time":
		return UnixTime(), nil
	case "add_days":
		if len(args) != 1 {
			return nil, fmt.Errorf("field: add_days requires the number of days")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("field: add_days: %w", err)
		}
		return AddDays(n), nil
	}
	return nil, fmt.Errorf("field: unknown converter %q", name)
}
