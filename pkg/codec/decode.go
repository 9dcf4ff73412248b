package codec

import (
	"bytes"
	"fmt"
)

// Decode parses buf into a new Record of the given schema, stepping
// through the schema's precompiled program.
func Decode(s *Schema, buf []byte) (*Record, error) {
	offset := 0
	return decodeInto(s, buf, &offset)
}

func decodeInto(s *Schema, buf []byte, offset *int) (*Record, error) {
	r := &Record{Schema: s, Values: make([]any, len(s.Fields))}

	for _, o := range s.program {
		switch o.kind {
		case opPackedRun:
			for _, fi := range o.fields {
				w := widthOf(s.Fields[fi].Kind)
				if *offset+w > len(buf) {
					return nil, fmt.Errorf("codec: decode field %q: buffer too short", s.Fields[fi].Name)
				}
				v, err := getNumeric(buf[*offset:*offset+w], s.Fields[fi].Kind)
				if err != nil {
					return nil, err
				}
				r.Values[fi] = v
				*offset += w
			}

		case opCString:
			rest := buf[*offset:]
			if idx := bytes.IndexByte(rest, 0); idx >= 0 {
				r.Values[o.field] = string(rest[:idx])
				*offset += idx + 1
			} else {
				r.Values[o.field] = string(rest)
				*offset = len(buf)
			}

		case opBytes:
			b := make([]byte, len(buf)-*offset)
			copy(b, buf[*offset:])
			r.Values[o.field] = b
			*offset = len(buf)

		case opCRC8:
			if *offset+1 > len(buf) {
				return nil, fmt.Errorf("codec: decode field %q: buffer too short", s.Fields[o.field].Name)
			}
			r.Values[o.field] = buf[*offset]
			*offset++

		case opCRC16:
			v, err := getNumeric(buf[*offset:], KindU16)
			if err != nil {
				return nil, fmt.Errorf("codec: decode field %q: %w", s.Fields[o.field].Name, err)
			}
			r.Values[o.field] = v
			*offset += 2

		case opNested:
			nested, err := decodeInto(s.Fields[o.field].Nested, buf, offset)
			if err != nil {
				return nil, fmt.Errorf("codec: decode nested field %q: %w", s.Fields[o.field].Name, err)
			}
			r.Values[o.field] = nested

		case opArray:
			elems, err := decodeElements(*o.elem, o.length, buf, offset)
			if err != nil {
				return nil, fmt.Errorf("codec: decode field %q: %w", s.Fields[o.field].Name, err)
			}
			r.Values[o.field] = elems

		case opVarArray:
			length := 0
			if o.lengthFieldIndex >= 0 {
				n, err := asLength(r.Values[o.lengthFieldIndex])
				if err != nil {
					return nil, fmt.Errorf("codec: decode field %q: %w", s.Fields[o.field].Name, err)
				}
				length = n
			}
			elems, err := decodeElements(*o.elem, length, buf, offset)
			if err != nil {
				return nil, fmt.Errorf("codec: decode field %q: %w", s.Fields[o.field].Name, err)
			}
			r.Values[o.field] = elems

		default:
			return nil, fmt.Errorf("codec: unhandled op %v", o.kind)
		}
	}

	return r, nil
}

func decodeElements(elem Field, length int, buf []byte, offset *int) ([]any, error) {
	elems := make([]any, length)
	for i := 0; i < length; i++ {
		switch elem.Kind {
		case KindNested:
			rec, err := decodeInto(elem.Nested, buf, offset)
			if err != nil {
				return nil, err
			}
			elems[i] = rec
		case KindCString:
			rest := buf[*offset:]
			if idx := bytes.IndexByte(rest, 0); idx >= 0 {
				elems[i] = string(rest[:idx])
				*offset += idx + 1
			} else {
				elems[i] = string(rest)
				*offset = len(buf)
			}
		case KindBytes:
			b := make([]byte, len(buf)-*offset)
			copy(b, buf[*offset:])
			elems[i] = b
			*offset = len(buf)
		default:
			w := widthOf(elem.Kind)
			if w == 0 {
				return nil, fmt.Errorf("codec: array element kind %v cannot be decoded", elem.Kind)
			}
			if *offset+w > len(buf) {
				return nil, fmt.Errorf("codec: array element %d: buffer too short", i)
			}
			v, err := getNumeric(buf[*offset:*offset+w], elem.Kind)
			if err != nil {
				return nil, err
			}
			elems[i] = v
			*offset += w
		}
	}
	return elems, nil
}
