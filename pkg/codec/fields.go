package codec

import "fmt"

// Kind identifies the wire shape of a Field.
type Kind int

const (
	KindU8 Kind = iota
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
	KindCString
	KindBytes // raw span, swallows all remaining bytes in the buffer on decode
	KindCRC8
	KindCRC16
	KindNested
	KindArray    // fixed-length array, length known at schema-construction time
	KindVarArray // length given by the runtime value of a prior integer field
)

// Field is one entry in a packet-type descriptor.
type Field struct {
	Name        string
	Kind        Kind
	Elem        *Field  // element descriptor, for KindArray / KindVarArray
	Length      int     // fixed length, for KindArray
	LengthField string  // controlling field name, for KindVarArray
	Nested      *Schema // nested descriptor, for KindNested

	lengthFieldIndex int // not set; compile stores the resolved index on the var-array op
}

// U8 through F64 declare fixed-width little-endian numeric fields.
func U8(name string) Field  { return Field{Name: name, Kind: KindU8} }
func I8(name string) Field  { return Field{Name: name, Kind: KindI8} }
func U16(name string) Field { return Field{Name: name, Kind: KindU16} }
func I16(name string) Field { return Field{Name: name, Kind: KindI16} }
func U32(name string) Field { return Field{Name: name, Kind: KindU32} }
func I32(name string) Field { return Field{Name: name, Kind: KindI32} }
func U64(name string) Field { return Field{Name: name, Kind: KindU64} }
func I64(name string) Field { return Field{Name: name, Kind: KindI64} }
func F32(name string) Field { return Field{Name: name, Kind: KindF32} }
func F64(name string) Field { return Field{Name: name, Kind: KindF64} }

// CString declares a null-terminated UTF-8 string field.
func CString(name string) Field { return Field{Name: name, Kind: KindCString} }

// Bytes declares a raw byte span running to the end of the containing buffer.
func Bytes(name string) Field { return Field{Name: name, Kind: KindBytes} }

// CRC8Field declares an embedded CRC-8 computed over the record's preceding bytes.
func CRC8Field(name string) Field { return Field{Name: name, Kind: KindCRC8} }

// CRC16Field declares an embedded CRC-16 computed over the record's preceding bytes.
func CRC16Field(name string) Field { return Field{Name: name, Kind: KindCRC16} }

// NestedField declares a field whose value is itself a record of the given schema.
func NestedField(name string, nested *Schema) Field {
	return Field{Name: name, Kind: KindNested, Nested: nested}
}

// ArrayField declares a fixed-length array of elem, repeated length times.
func ArrayField(name string, elem Field, length int) Field {
	e := elem
	return Field{Name: name, Kind: KindArray, Elem: &e, Length: length}
}

// VarArrayField declares a variable-length array whose length is read from
// (and, on encode, written back into) the most recently declared field named
// lengthField within the same schema.
func VarArrayField(name string, elem Field, lengthField string) Field {
	e := elem
	return Field{Name: name, Kind: KindVarArray, Elem: &e, LengthField: lengthField}
}

func widthOf(k Kind) int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindI32, KindF32:
		return 4
	case KindU64, KindI64, KindF64:
		return 8
	default:
		return 0
	}
}

// isPackable reports whether a field may be coalesced into a contiguous
// fixed-width run: plain numerics only — embedded CRCs must see the
// running buffer and so are never merged into a run.
func isPackable(k Kind) bool {
	switch k {
	case KindU8, KindI8, KindU16, KindI16, KindU32, KindI32, KindU64, KindI64, KindF32, KindF64:
		return true
	default:
		return false
	}
}

func zeroValue(k Kind) any {
	switch k {
	case KindU8:
		return uint8(0)
	case KindI8:
		return int8(0)
	case KindU16:
		return uint16(0)
	case KindI16:
		return int16(0)
	case KindU32:
		return uint32(0)
	case KindI32:
		return int32(0)
	case KindU64:
		return uint64(0)
	case KindI64:
		return int64(0)
	case KindF32:
		return float32(0)
	case KindF64:
		return float64(0)
	case KindCString:
		return ""
	case KindBytes:
		return []byte{}
	case KindCRC8:
		return uint8(0)
	case KindCRC16:
		return uint16(0)
	default:
		return nil
	}
}

// coerce adapts a caller-supplied literal (int, int64, uint64, float64, ...)
// to the exact Go type a Kind's field stores, so callers can construct
// records with ordinary integer literals instead of exact-width casts.
func coerce(k Kind, v any) (any, error) {
	asInt64 := func(v any) (int64, bool) {
		switch x := v.(type) {
		case int:
			return int64(x), true
		case int8:
			return int64(x), true
		case int16:
			return int64(x), true
		case int32:
			return int64(x), true
		case int64:
			return x, true
		case uint:
			return int64(x), true
		case uint8:
			return int64(x), true
		case uint16:
			return int64(x), true
		case uint32:
			return int64(x), true
		case uint64:
			return int64(x), true
		default:
			return 0, false
		}
	}

	switch k {
	case KindU8:
		if n, ok := asInt64(v); ok {
			return uint8(n), nil
		}
	case KindI8:
		if n, ok := asInt64(v); ok {
			return int8(n), nil
		}
	case KindU16:
		if n, ok := asInt64(v); ok {
			return uint16(n), nil
		}
	case KindI16:
		if n, ok := asInt64(v); ok {
			return int16(n), nil
		}
	case KindU32:
		if n, ok := asInt64(v); ok {
			return uint32(n), nil
		}
	case KindI32:
		if n, ok := asInt64(v); ok {
			return int32(n), nil
		}
	case KindU64:
		if n, ok := asInt64(v); ok {
			return uint64(n), nil
		}
	case KindI64:
		if n, ok := asInt64(v); ok {
			return int64(n), nil
		}
	case KindCRC8:
		if n, ok := asInt64(v); ok {
			return uint8(n), nil
		}
	case KindCRC16:
		if n, ok := asInt64(v); ok {
			return uint16(n), nil
		}
	case KindF32:
		switch x := v.(type) {
		case float32:
			return x, nil
		case float64:
			return float32(x), nil
		}
	case KindF64:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		}
	case KindCString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	}
	return nil, fmt.Errorf("codec: value %v (%T) is not assignable to field kind %v", v, v, k)
}

// asLength converts a decoded/assigned integer field value into an int
// length, used to resolve KindVarArray lengths and array loop bounds.
func asLength(v any) (int, error) {
	switch x := v.(type) {
	case uint8:
		return int(x), nil
	case int8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case int16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case int32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case int64:
		return int(x), nil
	case int:
		return x, nil
	default:
		return 0, fmt.Errorf("codec: value %v (%T) is not a valid array length", v, v)
	}
}
