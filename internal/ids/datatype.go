package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is the kind of data stored in an IDS node.
type DataType int

const (
	TypeNone DataType = iota
	TypeStructure
	TypeStructArray
	TypeStr
	TypeInt
	TypeFlt
	TypeCpx
)

func (d DataType) String() string {
	switch d {
	case TypeStructure:
		return "structure"
	case TypeStructArray:
		return "struct_array"
	case TypeStr:
		return "STR"
	case TypeInt:
		return "INT"
	case TypeFlt:
		return "FLT"
	case TypeCpx:
		return "CPX"
	default:
		return "none"
	}
}

// IsPrimitive reports whether nodes of this type hold data.
func (d DataType) IsPrimitive() bool {
	return d == TypeStr || d == TypeInt || d == TypeFlt || d == TypeCpx
}

// legacyTypes maps pre-3.x style type names to a data type and dimension.
var legacyTypes = map[string]struct {
	dt   DataType
	ndim int
}{
	"str_type":    {TypeStr, 0},
	"str_1d_type": {TypeStr, 1},
	"int_type":    {TypeInt, 0},
	"int_1d_type": {TypeInt, 1},
	"flt_type":    {TypeFlt, 0},
	"flt_1d_type": {TypeFlt, 1},
	"cpx_type":    {TypeCpx, 0},
}

// ParseDataType parses a DD data_type attribute, e.g. "FLT_2D" or "struct_array".
// An empty string yields TypeNone.
func ParseDataType(s string) (DataType, int, error) {
	switch s {
	case "":
		return TypeNone, 0, nil
	case "structure":
		return TypeStructure, 0, nil
	case "struct_array":
		return TypeStructArray, 1, nil
	}
	if lt, ok := legacyTypes[s]; ok {
		return lt.dt, lt.ndim, nil
	}

	prefix, dims, ok := strings.Cut(s, "_")
	if !ok || !strings.HasSuffix(dims, "D") {
		return TypeNone, 0, fmt.Errorf("unknown IDS data type: %q", s)
	}
	ndim, err := strconv.Atoi(strings.TrimSuffix(dims, "D"))
	if err != nil || ndim < 0 {
		return TypeNone, 0, fmt.Errorf("unknown IDS data type: %q", s)
	}
	var dt DataType
	maxDim := 6
	switch prefix {
	case "STR":
		dt, maxDim = TypeStr, 1
	case "INT":
		dt, maxDim = TypeInt, 3
	case "FLT":
		dt = TypeFlt
	case "CPX":
		dt = TypeCpx
	default:
		return TypeNone, 0, fmt.Errorf("unknown IDS data type: %q", s)
	}
	if ndim > maxDim {
		return TypeNone, 0, fmt.Errorf("unknown IDS data type: %q", s)
	}
	return dt, ndim, nil
}

// IDSType describes how a node varies over time.
type IDSType int

const (
	IDSTypeNone IDSType = iota
	IDSTypeConstant
	IDSTypeStatic
	IDSTypeDynamic
)

func (t IDSType) String() string {
	switch t {
	case IDSTypeConstant:
		return "constant"
	case IDSTypeStatic:
		return "static"
	case IDSTypeDynamic:
		return "dynamic"
	default:
		return "none"
	}
}

// ParseIDSType parses the DD "type" attribute. Unknown values map to IDSTypeNone.
func ParseIDSType(s string) IDSType {
	switch s {
	case "constant":
		return IDSTypeConstant
	case "static":
		return IDSTypeStatic
	case "dynamic":
		return IDSTypeDynamic
	default:
		return IDSTypeNone
	}
}

// Time modes stored in ids_properties/homogeneous_time.
const (
	TimeModeHeterogeneous int32 = 0
	TimeModeHomogeneous   int32 = 1
	TimeModeIndependent   int32 = 2
)

// Default (empty) values of primitive nodes.
const (
	EmptyInt     int32      = -999999999
	EmptyFloat   float64    = -9e40
	EmptyComplex complex128 = complex(EmptyFloat, EmptyFloat)
)
