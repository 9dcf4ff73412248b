package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// putNumeric writes v (of the Go type matching k) into buf using
// little-endian byte order. buf must be exactly widthOf(k) bytes.
func putNumeric(buf []byte, k Kind, v any) error {
	switch k {
	case KindU8:
		buf[0] = v.(uint8)
	case KindI8:
		buf[0] = byte(v.(int8))
	case KindU16:
		binary.LittleEndian.PutUint16(buf, v.(uint16))
	case KindI16:
		binary.LittleEndian.PutUint16(buf, uint16(v.(int16)))
	case KindU32:
		binary.LittleEndian.PutUint32(buf, v.(uint32))
	case KindI32:
		binary.LittleEndian.PutUint32(buf, uint32(v.(int32)))
	case KindU64:
		binary.LittleEndian.PutUint64(buf, v.(uint64))
	case KindI64:
		binary.LittleEndian.PutUint64(buf, uint64(v.(int64)))
	case KindF32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.(float32)))
	case KindF64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.(float64)))
	default:
		return fmt.Errorf("codec: kind %v is not numeric", k)
	}
	return nil
}

// getNumeric reads a value of the Go type matching k from buf, little-endian.
func getNumeric(buf []byte, k Kind) (any, error) {
	switch k {
	case KindU8:
		return buf[0], nil
	case KindI8:
		return int8(buf[0]), nil
	case KindU16:
		return binary.LittleEndian.Uint16(buf), nil
	case KindI16:
		return int16(binary.LittleEndian.Uint16(buf)), nil
	case KindU32:
		return binary.LittleEndian.Uint32(buf), nil
	case KindI32:
		return int32(binary.LittleEndian.Uint32(buf)), nil
	case KindU64:
		return binary.LittleEndian.Uint64(buf), nil
	case KindI64:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	case KindF32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
	case KindF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	default:
		return nil, fmt.Errorf("codec: kind %v is not numeric", k)
	}
}
