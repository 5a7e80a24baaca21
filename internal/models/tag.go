// Package models contains domain types for the AB tag poller.
package models

import (
	"reflect"
	"time"
)

// DataType identifies the decoded shape of a tag value.
type DataType string

const (
	DataTypeBool   DataType = "BOOL"
	DataTypeSInt   DataType = "SINT"
	DataTypeInt    DataType = "INT"
	DataTypeDInt   DataType = "DINT"
	DataTypeLInt   DataType = "LINT"
	DataTypeUSInt  DataType = "USINT"
	DataTypeUInt   DataType = "UINT"
	DataTypeUDInt  DataType = "UDINT"
	DataTypeULInt  DataType = "ULINT"
	DataTypeReal   DataType = "REAL"
	DataTypeLReal  DataType = "LREAL"
	DataTypeString DataType = "STRING"
	DataTypeStruct DataType = "STRUCT"
)

// Scope indicates whether a tag is controller-global or program-local.
type Scope string

const (
	ScopeController Scope = "controller"
	ScopeProgram    Scope = "program"
)

// Quality describes how trustworthy a captured value is.
type Quality string

const (
	QualityOK        Quality = "ok"
	QualityStale     Quality = "stale"
	QualityReadError Quality = "read_error"
)

// TagDescriptor identifies one addressable point on the controller.
// Structure tags carry their expanded member list; array tags carry
// their dimensions. Dimensions are immutable once discovered.
type TagDescriptor struct {
	Name       string          `json:"name"`
	DataType   DataType        `json:"data_type"`
	TypeCode   uint16          `json:"type_code,omitempty"`
	StructName string          `json:"struct_name,omitempty"`
	Scope      Scope           `json:"scope"`
	Program    string          `json:"program,omitempty"`
	Dimensions []int           `json:"dimensions,omitempty"`
	Members    []TagDescriptor `json:"members,omitempty"`
}

// IsArray reports whether the tag has array dimensions.
func (d *TagDescriptor) IsArray() bool {
	return len(d.Dimensions) > 0
}

// ElementCount returns the total number of array elements (1 for scalars).
func (d *TagDescriptor) ElementCount() int {
	n := 1
	for _, dim := range d.Dimensions {
		n *= dim
	}
	return n
}

// TagValue is one decoded reading for a tag. Value is nil when
// Quality is read_error; otherwise its runtime shape matches DataType
// (scalar, []interface{} for arrays, map[string]interface{} for structs).
type TagValue struct {
	TagName   string      `json:"tag_name"`
	DataType  DataType    `json:"data_type"`
	Value     interface{} `json:"value,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Quality   Quality     `json:"quality"`
	Error     string      `json:"error,omitempty"`
}

// EqualValue reports whether two readings decoded to the same value.
// Scalars compare exactly; arrays and structures compare element-wise.
func (v *TagValue) EqualValue(other *TagValue) bool {
	if other == nil {
		return false
	}
	if v.DataType != other.DataType {
		return false
	}
	return reflect.DeepEqual(v.Value, other.Value)
}
