// Package decode maps raw CIP type codes and byte buffers to typed tag
// values. Decoding is pure: no state, no I/O, so it can be property-
// tested independent of any controller access.
package decode

import (
	"errors"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Sentinel decode failures. Call sites wrap them with tag context.
var (
	ErrTruncatedBuffer = errors.New("truncated buffer")
	ErrUnknownType     = errors.New("unknown type code")
)

// CIP atomic type codes (little-endian encodings on the wire).
const (
	TypeBOOL   uint16 = 0xC1
	TypeSINT   uint16 = 0xC2
	TypeINT    uint16 = 0xC3
	TypeDINT   uint16 = 0xC4
	TypeLINT   uint16 = 0xC5
	TypeUSINT  uint16 = 0xC6
	TypeUINT   uint16 = 0xC7
	TypeUDINT  uint16 = 0xC8
	TypeULINT  uint16 = 0xC9
	TypeREAL   uint16 = 0xCA
	TypeLREAL  uint16 = 0xCB
	TypeSTRING uint16 = 0xDA
)

// StructBit marks structured (template) type handles in symbol metadata.
const StructBit uint16 = 0x8000

// IsStructCode reports whether a type code refers to a structure template.
func IsStructCode(code uint16) bool {
	return code&StructBit != 0
}

var codeToDataType = map[uint16]models.DataType{
	TypeBOOL:   models.DataTypeBool,
	TypeSINT:   models.DataTypeSInt,
	TypeINT:    models.DataTypeInt,
	TypeDINT:   models.DataTypeDInt,
	TypeLINT:   models.DataTypeLInt,
	TypeUSINT:  models.DataTypeUSInt,
	TypeUINT:   models.DataTypeUInt,
	TypeUDINT:  models.DataTypeUDInt,
	TypeULINT:  models.DataTypeULInt,
	TypeREAL:   models.DataTypeReal,
	TypeLREAL:  models.DataTypeLReal,
	TypeSTRING: models.DataTypeString,
}

// DataTypeForCode resolves a raw type code to the closed DataType enum.
func DataTypeForCode(code uint16) (models.DataType, bool) {
	if IsStructCode(code) {
		return models.DataTypeStruct, true
	}
	dt, ok := codeToDataType[code]
	return dt, ok
}

// scalarSize returns the fixed byte width of an atomic type, or 0 for
// variable-width (STRING) and unknown codes.
func scalarSize(code uint16) int {
	switch code {
	case TypeBOOL, TypeSINT, TypeUSINT:
		return 1
	case TypeINT, TypeUINT:
		return 2
	case TypeDINT, TypeUDINT, TypeREAL:
		return 4
	case TypeLINT, TypeULINT, TypeLREAL:
		return 8
	default:
		return 0
	}
}
