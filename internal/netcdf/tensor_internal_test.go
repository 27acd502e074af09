package netcdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceExtract(t *testing.T) {
	dst := filled(2*3*4, -1)
	shape := []int{2, 3, 4}
	place(dst, shape, []int{1}, []int{1, 2, 3, 4, 5, 6}, []int{2, 3})

	assert.Equal(t, -1, dst[0])
	assert.Equal(t, []int{1, 2, 3, -1}, dst[12:16])
	assert.Equal(t, []int{4, 5, 6, -1}, dst[16:20])
	assert.Equal(t, []int{-1, -1, -1, -1}, dst[20:24])

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, extract(dst, shape, []int{1}, []int{2, 3}))
	assert.Equal(t, []int{-1}, extract(dst, shape, []int{0, 2, 3}, nil))
	assert.Empty(t, extract(dst, shape, []int{0}, []int{0, 4}))
}

func TestIsFill(t *testing.T) {
	assert.True(t, isFill(""))
	assert.True(t, isFill(FillInt))
	assert.True(t, isFill(FillDouble))
	assert.True(t, isFill(FillComplex))
	assert.False(t, isFill(1.5))
	assert.False(t, isFill("x"))
}
