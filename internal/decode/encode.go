package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Encode is the inverse of Decode for atomic and array tags. It exists
// for write pass-through and for round-trip verification of the codec.
// BOOL canonically encodes true as 0xFF.
func Encode(code uint16, value interface{}, dims []int) ([]byte, error) {
	dt, ok := DataTypeForCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownType, code)
	}
	desc := &models.TagDescriptor{DataType: dt, TypeCode: code, Dimensions: dims}
	return EncodeTag(desc, value)
}

// EncodeTag serializes a decoded value back into the wire layout
// described by desc.
func EncodeTag(desc *models.TagDescriptor, value interface{}) ([]byte, error) {
	if desc.IsArray() {
		return encodeArray(desc, value)
	}
	if desc.DataType == models.DataTypeStruct {
		return encodeStruct(desc, value)
	}
	return encodeScalar(desc.TypeCode, value)
}

func encodeArray(desc *models.TagDescriptor, value interface{}) ([]byte, error) {
	elems, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("array %s: expected []interface{}, got %T", desc.Name, value)
	}
	n := desc.ElementCount()
	if len(elems) != n {
		return nil, fmt.Errorf("array %s: expected %d elements, got %d", desc.Name, n, len(elems))
	}

	if desc.DataType == models.DataTypeBool {
		words := (n + 31) / 32
		out := make([]byte, words*4)
		for i, e := range elems {
			b, ok := e.(bool)
			if !ok {
				return nil, fmt.Errorf("array %s element %d: expected bool, got %T", desc.Name, i, e)
			}
			if b {
				out[i/8] |= 1 << (i % 8)
			}
		}
		return out, nil
	}

	elem := *desc
	elem.Dimensions = nil
	var out []byte
	for i, e := range elems {
		b, err := EncodeTag(&elem, e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeStruct(desc *models.TagDescriptor, value interface{}) ([]byte, error) {
	fields, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("structure %s: expected map[string]interface{}, got %T", desc.StructName, value)
	}
	var out []byte
	for i := range desc.Members {
		m := &desc.Members[i]
		v, ok := fields[m.Name]
		if !ok {
			return nil, fmt.Errorf("structure %s: missing member %s", desc.StructName, m.Name)
		}
		b, err := EncodeTag(m, v)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func encodeScalar(code uint16, value interface{}) ([]byte, error) {
	switch code {
	case TypeBOOL:
		b, ok := value.(bool)
		if !ok {
			return nil, typeMismatch(code, "bool", value)
		}
		if b {
			return []byte{0xFF}, nil
		}
		return []byte{0x00}, nil
	case TypeSINT:
		n, ok := intInRange(value, math.MinInt8, math.MaxInt8)
		if !ok {
			return nil, typeMismatch(code, "SINT", value)
		}
		return []byte{byte(int8(n))}, nil
	case TypeUSINT:
		n, ok := intInRange(value, 0, math.MaxUint8)
		if !ok {
			return nil, typeMismatch(code, "USINT", value)
		}
		return []byte{byte(n)}, nil
	case TypeINT:
		n, ok := intInRange(value, math.MinInt16, math.MaxInt16)
		if !ok {
			return nil, typeMismatch(code, "INT", value)
		}
		return le16(uint16(int16(n))), nil
	case TypeUINT:
		n, ok := intInRange(value, 0, math.MaxUint16)
		if !ok {
			return nil, typeMismatch(code, "UINT", value)
		}
		return le16(uint16(n)), nil
	case TypeDINT:
		n, ok := intInRange(value, math.MinInt32, math.MaxInt32)
		if !ok {
			return nil, typeMismatch(code, "DINT", value)
		}
		return le32(uint32(int32(n))), nil
	case TypeUDINT:
		n, ok := intInRange(value, 0, math.MaxUint32)
		if !ok {
			return nil, typeMismatch(code, "UDINT", value)
		}
		return le32(uint32(n)), nil
	case TypeLINT:
		n, ok := asInt64(value)
		if !ok {
			return nil, typeMismatch(code, "LINT", value)
		}
		return le64(uint64(n)), nil
	case TypeULINT:
		if v, ok := value.(uint64); ok {
			return le64(v), nil
		}
		n, ok := asInt64(value)
		if !ok || n < 0 {
			return nil, typeMismatch(code, "ULINT", value)
		}
		return le64(uint64(n)), nil
	case TypeREAL:
		f, ok := asFloat64(value)
		if !ok {
			return nil, typeMismatch(code, "REAL", value)
		}
		return le32(math.Float32bits(float32(f))), nil
	case TypeLREAL:
		f, ok := asFloat64(value)
		if !ok {
			return nil, typeMismatch(code, "LREAL", value)
		}
		return le64(math.Float64bits(f)), nil
	case TypeSTRING:
		s, ok := value.(string)
		if !ok {
			return nil, typeMismatch(code, "string", value)
		}
		out := make([]byte, 4+len(s))
		binary.LittleEndian.PutUint32(out, uint32(len(s)))
		copy(out[4:], s)
		return out, nil
	}
	return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownType, code)
}

// JSON bodies hand every number over as float64, so integer targets
// accept any Go numeric and range-check it instead of asserting the
// exact type. Fractional floats never coerce to an integer type.
func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatAsInt64(float64(v))
	case float64:
		return floatAsInt64(v)
	}
	return 0, false
}

func floatAsInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func intInRange(value interface{}, min, max int64) (int64, bool) {
	n, ok := asInt64(value)
	if !ok || n < min || n > max {
		return 0, false
	}
	return n, true
}

func asFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if n, ok := asInt64(value); ok {
		return float64(n), true
	}
	return 0, false
}

func typeMismatch(code uint16, want string, got interface{}) error {
	return fmt.Errorf("type 0x%04X: expected %s, got %T", code, want, got)
}

func le16(v uint16) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, v)
	return out
}

func le32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}
