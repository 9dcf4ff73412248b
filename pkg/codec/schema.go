package codec

import "fmt"

// Schema is a declarative, ordered packet-type descriptor. It is built
// once (at registration time) and compiled into a program of
// encode/decode segments, so that registering a packet type pays the
// layout-analysis cost exactly once rather than on every Encode/Decode.
type Schema struct {
	Name   string
	Fields []Field

	index   map[string]int
	program []op
}

// NewSchema builds and compiles a packet-type descriptor.
func NewSchema(name string, fields ...Field) *Schema {
	s := &Schema{Name: name, Fields: fields}
	s.index = make(map[string]int, len(fields))
	for i, f := range fields {
		s.index[f.Name] = i
	}
	s.program = compile(s)
	return s
}

func (s *Schema) fieldIndex(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// opKind tags one segment of a schema's compiled program.
type opKind int

const (
	opPackedRun opKind = iota
	opCString
	opBytes
	opCRC8
	opCRC16
	opNested
	opArray
	opVarArray
)

type op struct {
	kind opKind

	// opPackedRun
	fields []int

	// single-field ops (all but opPackedRun)
	field int

	// opArray / opVarArray
	elem             *Field
	length           int // opArray: fixed length
	lengthFieldIndex int // opVarArray: index into Fields of the controlling length field
}

// compile walks a schema's field list once, coalescing consecutive
// fixed-width numeric fields into a single packed-run segment and
// resolving each var-array's length field to the *most recently
// declared* same-named field (closing the ambiguity the reference
// implementation leaves open when more than one field shares a name).
func compile(s *Schema) []op {
	var program []op
	var run []int

	flushRun := func() {
		if len(run) > 0 {
			program = append(program, op{kind: opPackedRun, fields: run})
			run = nil
		}
	}

	for i, f := range s.Fields {
		if isPackable(f.Kind) {
			run = append(run, i)
			continue
		}
		flushRun()

		switch f.Kind {
		case KindCString:
			program = append(program, op{kind: opCString, field: i})
		case KindBytes:
			program = append(program, op{kind: opBytes, field: i})
		case KindCRC8:
			program = append(program, op{kind: opCRC8, field: i})
		case KindCRC16:
			program = append(program, op{kind: opCRC16, field: i})
		case KindNested:
			program = append(program, op{kind: opNested, field: i})
		case KindArray:
			program = append(program, op{kind: opArray, field: i, elem: f.Elem, length: f.Length})
		case KindVarArray:
			lfi := -1
			for j := i - 1; j >= 0; j-- {
				if s.Fields[j].Name == f.LengthField {
					lfi = j
					break
				}
			}
			program = append(program, op{kind: opVarArray, field: i, elem: f.Elem, lengthFieldIndex: lfi})
		default:
			panic(fmt.Sprintf("codec: unhandled field kind %v", f.Kind))
		}
	}
	flushRun()
	return program
}

// Record is a decoded or caller-constructed instance of a Schema.
type Record struct {
	Schema *Schema
	Values []any
}

// New builds a Record from positional values, filling any fields beyond
// the supplied arguments with their type-appropriate zero default.
func (s *Schema) New(values ...any) (*Record, error) {
	r := &Record{Schema: s, Values: make([]any, len(s.Fields))}
	for i, f := range s.Fields {
		if i < len(values) && values[i] != nil {
			v, err := coerceField(f, values[i])
			if err != nil {
				return nil, err
			}
			r.Values[i] = v
		} else {
			r.Values[i] = defaultField(f)
		}
	}
	return r, nil
}

// NewByName builds a Record from a subset of fields supplied by name,
// filling the rest with their type-appropriate zero default.
func (s *Schema) NewByName(named map[string]any) (*Record, error) {
	r := &Record{Schema: s, Values: make([]any, len(s.Fields))}
	for i, f := range s.Fields {
		if v, ok := named[f.Name]; ok {
			cv, err := coerceField(f, v)
			if err != nil {
				return nil, err
			}
			r.Values[i] = cv
		} else {
			r.Values[i] = defaultField(f)
		}
	}
	return r, nil
}

func defaultField(f Field) any {
	switch f.Kind {
	case KindNested:
		r, _ := f.Nested.New()
		return r
	case KindArray:
		elems := make([]any, f.Length)
		for i := range elems {
			elems[i] = defaultField(*f.Elem)
		}
		return elems
	case KindVarArray:
		return []any{}
	default:
		return zeroValue(f.Kind)
	}
}

func coerceField(f Field, v any) (any, error) {
	switch f.Kind {
	case KindNested:
		if rec, ok := v.(*Record); ok {
			return rec, nil
		}
		return nil, fmt.Errorf("codec: field %q expects a *Record", f.Name)
	case KindArray, KindVarArray:
		if elems, ok := v.([]any); ok {
			return elems, nil
		}
		return nil, fmt.Errorf("codec: field %q expects []any", f.Name)
	default:
		return coerce(f.Kind, v)
	}
}

// Get returns the current value of a named field.
func (r *Record) Get(name string) (any, bool) {
	i, ok := r.Schema.fieldIndex(name)
	if !ok {
		return nil, false
	}
	return r.Values[i], true
}

// Set assigns a named field, coercing literal Go values to the field's
// exact wire type.
func (r *Record) Set(name string, v any) error {
	i, ok := r.Schema.fieldIndex(name)
	if !ok {
		return fmt.Errorf("codec: schema %q has no field %q", r.Schema.Name, name)
	}
	cv, err := coerceField(r.Schema.Fields[i], v)
	if err != nil {
		return err
	}
	r.Values[i] = cv
	return nil
}
