package decode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Decode interprets raw as a value of the given atomic type code, with
// optional array dimensions. Structure tags carry their member layout
// in a TagDescriptor; decode those with DecodeTag.
func Decode(code uint16, raw []byte, dims []int) (interface{}, error) {
	if IsStructCode(code) {
		return nil, fmt.Errorf("type 0x%04X: structure decode requires a member layout", code)
	}
	dt, ok := DataTypeForCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", ErrUnknownType, code)
	}
	desc := &models.TagDescriptor{DataType: dt, TypeCode: code, Dimensions: dims}
	return DecodeTag(desc, raw)
}

// DecodeTag decodes raw into the shape described by desc: a scalar for
// atomic tags, []interface{} for arrays, map[string]interface{} for
// structures (decoded recursively member by member).
func DecodeTag(desc *models.TagDescriptor, raw []byte) (interface{}, error) {
	v, _, err := decodeDesc(desc, raw)
	return v, err
}

// decodeDesc returns the decoded value and the number of bytes consumed.
func decodeDesc(desc *models.TagDescriptor, raw []byte) (interface{}, int, error) {
	if desc.IsArray() {
		return decodeArray(desc, raw)
	}
	if desc.DataType == models.DataTypeStruct {
		return decodeStruct(desc, raw)
	}
	return decodeScalar(desc.TypeCode, raw)
}

func decodeArray(desc *models.TagDescriptor, raw []byte) (interface{}, int, error) {
	n := desc.ElementCount()

	// BOOL arrays come bit-packed in 32-bit words.
	if desc.DataType == models.DataTypeBool {
		words := (n + 31) / 32
		need := words * 4
		if len(raw) < need {
			return nil, 0, fmt.Errorf("%w: need %d bytes for %d packed bits, have %d", ErrTruncatedBuffer, need, n, len(raw))
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = raw[i/8]&(1<<(i%8)) != 0
		}
		return out, need, nil
	}

	// Fixed-width elements are length-validated up front.
	if size := scalarSize(desc.TypeCode); size > 0 {
		need := size * n
		if len(raw) < need {
			return nil, 0, fmt.Errorf("%w: need %d bytes for %d elements, have %d", ErrTruncatedBuffer, need, n, len(raw))
		}
	}

	elem := *desc
	elem.Dimensions = nil
	out := make([]interface{}, n)
	consumed := 0
	for i := 0; i < n; i++ {
		v, used, err := decodeDesc(&elem, raw[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
		consumed += used
	}
	return out, consumed, nil
}

func decodeStruct(desc *models.TagDescriptor, raw []byte) (interface{}, int, error) {
	if len(desc.Members) == 0 {
		return nil, 0, fmt.Errorf("structure %s: no member layout", desc.StructName)
	}
	out := make(map[string]interface{}, len(desc.Members))
	consumed := 0
	for i := range desc.Members {
		m := &desc.Members[i]
		v, used, err := decodeDesc(m, raw[consumed:])
		if err != nil {
			return nil, 0, fmt.Errorf("member %s: %w", m.Name, err)
		}
		out[m.Name] = v
		consumed += used
	}
	return out, consumed, nil
}

func decodeScalar(code uint16, raw []byte) (interface{}, int, error) {
	if code == TypeSTRING {
		return decodeString(raw)
	}
	size := scalarSize(code)
	if size == 0 {
		return nil, 0, fmt.Errorf("%w: 0x%04X", ErrUnknownType, code)
	}
	if len(raw) < size {
		return nil, 0, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedBuffer, size, len(raw))
	}

	switch code {
	case TypeBOOL:
		return raw[0] != 0, 1, nil
	case TypeSINT:
		return int8(raw[0]), 1, nil
	case TypeUSINT:
		return raw[0], 1, nil
	case TypeINT:
		return int16(binary.LittleEndian.Uint16(raw)), 2, nil
	case TypeUINT:
		return binary.LittleEndian.Uint16(raw), 2, nil
	case TypeDINT:
		return int32(binary.LittleEndian.Uint32(raw)), 4, nil
	case TypeUDINT:
		return binary.LittleEndian.Uint32(raw), 4, nil
	case TypeLINT:
		return int64(binary.LittleEndian.Uint64(raw)), 8, nil
	case TypeULINT:
		return binary.LittleEndian.Uint64(raw), 8, nil
	case TypeREAL:
		return math.Float32frombits(binary.LittleEndian.Uint32(raw)), 4, nil
	case TypeLREAL:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), 8, nil
	}
	return nil, 0, fmt.Errorf("%w: 0x%04X", ErrUnknownType, code)
}

// decodeString reads a 4-byte little-endian length prefix then that
// many bytes of character data.
func decodeString(raw []byte) (interface{}, int, error) {
	if len(raw) < 4 {
		return nil, 0, fmt.Errorf("%w: need 4 bytes for string length, have %d", ErrTruncatedBuffer, len(raw))
	}
	length := int(int32(binary.LittleEndian.Uint32(raw)))
	if length < 0 {
		return nil, 0, fmt.Errorf("invalid string length %d", length)
	}
	if len(raw) < 4+length {
		return nil, 0, fmt.Errorf("%w: need %d bytes for string data, have %d", ErrTruncatedBuffer, 4+length, len(raw))
	}
	return string(raw[4 : 4+length]), 4 + length, nil
}
