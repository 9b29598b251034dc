// Package field describes the storage types of mapped members and the
// converters that translate member values to column values.
//
//	info, scalar := field.TypeOf(reflect.TypeOf(int64(0)))
//	// info.Type == field.TypeInt64, scalar == true
//
// # Converters
//
// A column mapped with a converter stores a different representation than
// its member. Constants compared with or assigned to such a column are
// converted before they are bound as parameters:
//
//	field.EnumString("InfoTypeA", "InfoTypeB") // InfoType(1) is stored as "InfoTypeB"
//	field.UUIDString()                         // uuid.UUID is stored as text
//	field.UnixTime()                           // time.Time is stored as seconds
package field
