package codec

import (
	"fmt"

	"github.com/librescoot/serialtransport/pkg/checksum"
)

// Encode serializes a Record to its little-endian wire representation,
// stepping through the schema's precompiled program instead of
// re-deriving field layout on every call. Runs of fixed-width fields
// are packed into a single contiguous write.
func Encode(r *Record) ([]byte, error) {
	var buf []byte
	s := r.Schema

	// Var-array length fields may sit in an earlier packed run, so they
	// are set from the arrays' actual lengths before anything is written.
	for _, o := range s.program {
		if o.kind == opVarArray && o.lengthFieldIndex >= 0 {
			elems, _ := r.Values[o.field].([]any)
			r.Values[o.lengthFieldIndex] = coerceLength(s.Fields[o.lengthFieldIndex].Kind, len(elems))
		}
	}

	for _, o := range s.program {
		switch o.kind {
		case opPackedRun:
			total := 0
			for _, fi := range o.fields {
				total += widthOf(s.Fields[fi].Kind)
			}
			start := len(buf)
			buf = append(buf, make([]byte, total)...)
			off := start
			for _, fi := range o.fields {
				w := widthOf(s.Fields[fi].Kind)
				if err := putNumeric(buf[off:off+w], s.Fields[fi].Kind, r.Values[fi]); err != nil {
					return nil, fmt.Errorf("codec: encode field %q: %w", s.Fields[fi].Name, err)
				}
				off += w
			}

		case opCString:
			str, _ := r.Values[o.field].(string)
			buf = append(buf, []byte(str)...)
			buf = append(buf, 0)

		case opBytes:
			b, _ := r.Values[o.field].([]byte)
			buf = append(buf, b...)

		case opCRC8:
			v := checksum.CRC8(0, buf)
			r.Values[o.field] = v
			buf = append(buf, v)

		case opCRC16:
			v := checksum.CRC16(0, buf)
			r.Values[o.field] = v
			buf = append(buf, byte(v), byte(v>>8))

		case opNested:
			nested, ok := r.Values[o.field].(*Record)
			if !ok {
				return nil, fmt.Errorf("codec: field %q is not a nested record", s.Fields[o.field].Name)
			}
			nb, err := Encode(nested)
			if err != nil {
				return nil, fmt.Errorf("codec: encode nested field %q: %w", s.Fields[o.field].Name, err)
			}
			buf = append(buf, nb...)

		case opArray:
			elems, _ := r.Values[o.field].([]any)
			if len(elems) != o.length {
				return nil, fmt.Errorf("codec: field %q declares length %d, got %d elements", s.Fields[o.field].Name, o.length, len(elems))
			}
			nb, err := encodeElements(*o.elem, elems)
			if err != nil {
				return nil, err
			}
			buf = append(buf, nb...)

		case opVarArray:
			elems, _ := r.Values[o.field].([]any)
			nb, err := encodeElements(*o.elem, elems)
			if err != nil {
				return nil, err
			}
			buf = append(buf, nb...)

		default:
			return nil, fmt.Errorf("codec: unhandled op %v", o.kind)
		}
	}

	return buf, nil
}

func coerceLength(k Kind, n int) any {
	v, err := coerce(k, n)
	if err != nil {
		// length fields are always plain integers; coerce cannot fail here.
		panic(err)
	}
	return v
}

func encodeElements(elem Field, values []any) ([]byte, error) {
	var buf []byte
	for i, v := range values {
		switch elem.Kind {
		case KindNested:
			rec, ok := v.(*Record)
			if !ok {
				return nil, fmt.Errorf("codec: array element %d is not a nested record", i)
			}
			eb, err := Encode(rec)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		case KindCString:
			str, _ := v.(string)
			buf = append(buf, []byte(str)...)
			buf = append(buf, 0)
		case KindBytes:
			b, _ := v.([]byte)
			buf = append(buf, b...)
		default:
			w := widthOf(elem.Kind)
			if w == 0 {
				return nil, fmt.Errorf("codec: array element kind %v cannot be encoded", elem.Kind)
			}
			eb := make([]byte, w)
			if err := putNumeric(eb, elem.Kind, v); err != nil {
				return nil, fmt.Errorf("codec: array element %d: %w", i, err)
			}
			buf = append(buf, eb...)
		}
	}
	return buf, nil
}
