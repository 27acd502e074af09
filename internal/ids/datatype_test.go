package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in   string
		dt   DataType
		ndim int
	}{
		{"", TypeNone, 0},
		{"structure", TypeStructure, 0},
		{"struct_array", TypeStructArray, 1},
		{"STR_0D", TypeStr, 0},
		{"STR_1D", TypeStr, 1},
		{"INT_3D", TypeInt, 3},
		{"FLT_6D", TypeFlt, 6},
		{"CPX_2D", TypeCpx, 2},
		{"flt_1d_type", TypeFlt, 1},
		{"str_type", TypeStr, 0},
		{"int_1d_type", TypeInt, 1},
	}
	for _, tt := range tests {
		dt, ndim, err := ParseDataType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.dt, dt, tt.in)
		assert.Equal(t, tt.ndim, ndim, tt.in)
	}

	for _, bad := range []string{"STR_2D", "INT_4D", "FLT_7D", "FOO_1D", "FLT", "FLT_xD"} {
		_, _, err := ParseDataType(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseIDSType(t *testing.T) {
	assert.Equal(t, IDSTypeConstant, ParseIDSType("constant"))
	assert.Equal(t, IDSTypeStatic, ParseIDSType("static"))
	assert.Equal(t, IDSTypeDynamic, ParseIDSType("dynamic"))
	assert.Equal(t, IDSTypeNone, ParseIDSType(""))
}
