package field

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// A Type represents a field type.
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeTime
	TypeJSON
	TypeUUID
	TypeBytes
	TypeEnum
	TypeString
	TypeOther
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint
	TypeUint64
	TypeFloat32
	TypeFloat64
	endTypes
)

var (
	typeNames = [...]string{
		TypeInvalid: "invalid",
		TypeBool:    "bool",
		TypeTime:    "time.Time",
		TypeJSON:    "json.RawMessage",
		TypeUUID:    "[16]byte",
		TypeBytes:   "[]byte",
		TypeEnum:    "string",
		TypeString:  "string",
		TypeOther:   "other",
		TypeInt:     "int",
		TypeInt8:    "int8",
		TypeInt16:   "int16",
		TypeInt32:   "int32",
		TypeInt64:   "int64",
		TypeUint:    "uint",
		TypeUint8:   "uint8",
		TypeUint16:  "uint16",
		TypeUint32:  "uint32",
		TypeUint64:  "uint64",
		TypeFloat32: "float32",
		TypeFloat64: "float64",
	}
	constNames = [...]string{
		TypeJSON:    "TypeJSON",
		TypeUUID:    "TypeUUID",
		TypeTime:    "TypeTime",
		TypeEnum:    "TypeEnum",
		TypeBytes:   "TypeBytes",
		TypeOther:   "TypeOther",
		TypeBool:    "TypeBool",
		TypeString:  "TypeString",
		TypeInt:     "TypeInt",
		TypeInt8:    "TypeInt8",
		TypeInt16:   "TypeInt16",
		TypeInt32:   "TypeInt32",
		TypeInt64:   "TypeInt64",
		TypeUint:    "TypeUint",
		TypeUint8:   "TypeUint8",
		TypeUint16:  "TypeUint16",
		TypeUint32:  "TypeUint32",
		TypeUint64:  "TypeUint64",
		TypeFloat32: "TypeFloat32",
		TypeFloat64: "TypeFloat64",
	}
	// names accepted by ParseType, as written in mapping files.
	parseNames = map[string]Type{
		"bool":    TypeBool,
		"time":    TypeTime,
		"json":    TypeJSON,
		"uuid":    TypeUUID,
		"bytes":   TypeBytes,
		"enum":    TypeEnum,
		"string":  TypeString,
		"other":   TypeOther,
		"int8":    TypeInt8,
		"int16":   TypeInt16,
		"int32":   TypeInt32,
		"int":     TypeInt,
		"int64":   TypeInt64,
		"uint8":   TypeUint8,
		"uint16":  TypeUint16,
		"uint32":  TypeUint32,
		"uint":    TypeUint,
		"uint64":  TypeUint64,
		"float32": TypeFloat32,
		"float64": TypeFloat64,
	}
)

// String returns the string representation of a type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Numeric reports if the given type is a numeric type.
func (t Type) Numeric() bool {
	return t >= TypeInt8 && t < endTypes
}

// Integer reports if the given type is an integer type.
func (t Type) Integer() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// Valid reports if the given type if known type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// ConstName returns the constant name of a type.
func (t Type) ConstName() string {
	if !t.Valid() {
		return typeNames[TypeInvalid]
	}
	return constNames[t]
}

// Textual reports if the type is stored as character data.
func (t Type) Textual() bool {
	return t == TypeString || t == TypeEnum
}

// ParseType returns the type with the given mapping-file name, for example
// "int64" or "uuid".
func ParseType(s string) (Type, error) {
	if t, ok := parseNames[strings.ToLower(s)]; ok {
		return t, nil
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", s)
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	rawJSONType = reflect.TypeOf(json.RawMessage{})
	bytesType   = reflect.TypeOf([]byte(nil))
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

	nullTypes = map[reflect.Type]Type{
		reflect.TypeOf(sql.NullString{}):  TypeString,
		reflect.TypeOf(sql.NullBool{}):    TypeBool,
		reflect.TypeOf(sql.NullByte{}):    TypeUint8,
		reflect.TypeOf(sql.NullInt16{}):   TypeInt16,
		reflect.TypeOf(sql.NullInt32{}):   TypeInt32,
		reflect.TypeOf(sql.NullInt64{}):   TypeInt64,
		reflect.TypeOf(sql.NullFloat64{}): TypeFloat64,
		reflect.TypeOf(sql.NullTime{}):    TypeTime,
		reflect.TypeOf(uuid.NullUUID{}):   TypeUUID,
	}
)

// Info describes the storage type of a Go member.
type Info struct {
	Type     Type
	Nullable bool
	RType    reflect.Type
}

// TypeOf returns the storage type of a Go member type. Scalar reports
// whether the type maps to a single column; struct types that are not
// scalars are either owned or embedded.
func TypeOf(rt reflect.Type) (info Info, scalar bool) {
	info.RType = rt
	if rt.Kind() == reflect.Pointer {
		info.Nullable = true
		rt = rt.Elem()
	}
	if t, ok := nullTypes[rt]; ok {
		info.Type, info.Nullable = t, true
		return info, true
	}
	switch {
	case rt == timeType:
		info.Type = TypeTime
		return info, true
	case rt == uuidType:
		info.Type = TypeUUID
		return info, true
	case rt == rawJSONType:
		info.Type, info.Nullable = TypeJSON, true
		return info, true
	case rt.ConvertibleTo(bytesType) && rt.Kind() == reflect.Slice:
		info.Type, info.Nullable = TypeBytes, true
		return info, true
	}
	switch rt.Kind() {
	case reflect.Bool:
		info.Type = TypeBool
	case reflect.String:
		info.Type = TypeString
	case reflect.Int:
		info.Type = TypeInt
	case reflect.Int8:
		info.Type = TypeInt8
	case reflect.Int16:
		info.Type = TypeInt16
	case reflect.Int32:
		info.Type = TypeInt32
	case reflect.Int64:
		info.Type = TypeInt64
	case reflect.Uint:
		info.Type = TypeUint
	case reflect.Uint8:
		info.Type = TypeUint8
	case reflect.Uint16:
		info.Type = TypeUint16
	case reflect.Uint32:
		info.Type = TypeUint32
	case reflect.Uint64:
		info.Type = TypeUint64
	case reflect.Float32:
		info.Type = TypeFloat32
	case reflect.Float64:
		info.Type = TypeFloat64
	default:
		if rt.Implements(valuerType) || reflect.PointerTo(rt).Implements(scannerType) {
			info.Type = TypeOther
			return info, true
		}
		return info, false
	}
	return info, true
}

// Coerce converts a parsed literal to the Go representation expected for a
// column of type t. Values that already fit, or that have no obvious
// conversion, are returned unchanged. Numbers out of the range of an
// integer column fail.
func Coerce(t Type, v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if t.Integer() {
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("field: %v is not an integer", x)
			}
			// float64(hi)+1 is exact for narrow types and rounds to 2^63 for
			// 64-bit ones.
			lo, hi := intBounds(t)
			if x < float64(lo) || x >= float64(hi)+1 {
				return nil, fmt.Errorf("field: %v overflows %s", x, t)
			}
			return int64(x), nil
		}
	case int:
		if t == TypeFloat32 || t == TypeFloat64 {
			return float64(x), nil
		}
		if err := checkInt(t, int64(x)); err != nil {
			return nil, err
		}
	case int64:
		if err := checkInt(t, x); err != nil {
			return nil, err
		}
	case string:
		switch t {
		case TypeTime:
			tm, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, fmt.Errorf("field: parsing time %q: %w", x, err)
			}
			return tm, nil
		case TypeUUID:
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, fmt.Errorf("field: parsing uuid %q: %w", x, err)
			}
			return id, nil
		}
	}
	return v, nil
}

func checkInt(t Type, x int64) error {
	if !t.Integer() {
		return nil
	}
	if lo, hi := intBounds(t); x < lo || x > hi {
		return fmt.Errorf("field: %d overflows %s", x, t)
	}
	return nil
}

// intBounds returns the inclusive range of the integer type t that an
// int64 can represent.
func intBounds(t Type) (lo, hi int64) {
	switch t {
	case TypeInt8:
		return math.MinInt8, math.MaxInt8
	case TypeInt16:
		return math.MinInt16, math.MaxInt16
	case TypeInt32:
		return math.MinInt32, math.MaxInt32
	case TypeUint8:
		return 0, math.MaxUint8
	case TypeUint16:
		return 0, math.MaxUint16
	case TypeUint32:
		return 0, math.MaxUint32
	case TypeUint, TypeUint64:
		return 0, math.MaxInt64
	}
	return math.MinInt64, math.MaxInt64
}
