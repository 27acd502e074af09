package ids_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"imaspy/internal/ids"
)

func xxh(b []byte) ids.Digest {
	var d ids.Digest
	binary.BigEndian.PutUint64(d[:], xxh3.Hash(b))
	return d
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func u64(n int) []byte { return binary.LittleEndian.AppendUint64(nil, uint64(n)) }

func TestHashStr0D(t *testing.T) {
	m := minimal(t)
	set(t, &m.Structure, "str_0d", "Test str_0d hash")
	want := ids.Digest([]byte("r\x9d\x8dC.JN\x0e"))
	assert.Equal(t, want, xxh([]byte("Test str_0d hash")))
	assert.Equal(t, want, ids.Hash(m.Leaf("str_0d")))
}

func TestHashStr1D(t *testing.T) {
	m := minimal(t)
	l := []string{"Test str_1d hash", "Of course, there must be ", "multiple entries to test!"}
	set(t, &m.Structure, "str_1d", l)
	buf := u64(len(l))
	for _, s := range l {
		d := xxh([]byte(s))
		buf = append(buf, d[:]...)
	}
	want := ids.Digest([]byte("\x98\x011\x9dx+\x0e\xc0"))
	assert.Equal(t, want, xxh(buf))
	assert.Equal(t, want, ids.Hash(m.Leaf("str_1d")))
}

func TestHashScalars(t *testing.T) {
	m := minimal(t)
	set(t, &m.Structure, "int_0d", 273409)
	assert.Equal(t, ids.Digest([]byte("D\x1an\x8b\xbe\x99\x9a\t")), ids.Hash(m.Leaf("int_0d")))

	set(t, &m.Structure, "flt_0d", 3.141592)
	assert.Equal(t, xxh(binary.LittleEndian.AppendUint64(nil, math.Float64bits(3.141592))), ids.Hash(m.Leaf("flt_0d")))

	set(t, &m.Structure, "cpx_0d", complex(3.141592, -2.718281))
	assert.Equal(t, ids.Digest([]byte("\x18`\xcek\x82\xa0\x18\x0e")), ids.Hash(m.Leaf("cpx_0d")))
}

func TestHashIntND(t *testing.T) {
	m := minimal(t)
	for n := 1; n <= 3; n++ {
		shape := make([]int, n)
		for i := range shape {
			shape[i] = 5
		}
		arr := ids.Filled(shape, int32(0))
		data := arr.Data()
		for i := range data {
			data[i] = int32(i)
		}
		name := []string{"", "int_1d", "int_2d", "int_3d"}[n]
		set(t, &m.Structure, name, arr)

		buf := []byte{byte(n)}
		for range n {
			buf = append(buf, u64(5)...)
		}
		for _, x := range arr.FortranOrder() {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(x))
		}
		assert.Equal(t, xxh(buf), ids.Hash(m.Leaf(name)), name)
	}
}

func TestHashFltND(t *testing.T) {
	m := minimal(t)
	arr, err := ids.NewArray([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	set(t, &m.Structure, "flt_2d", arr)

	buf := concat([]byte{2}, u64(2), u64(3))
	for _, x := range []float64{1, 4, 2, 5, 3, 6} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
	}
	assert.Equal(t, xxh(buf), ids.Hash(m.Leaf("flt_2d")))
}

func TestHashAoS(t *testing.T) {
	cp := newIDS(t, "3.39.0", "core_profiles")
	p1d := cp.Array("profiles_1d")
	assert.Equal(t, xxh(make([]byte, 8)), ids.Hash(p1d))

	require.NoError(t, p1d.Resize(3, false))
	empty := xxh(nil)
	for _, e := range p1d.Elements() {
		assert.Equal(t, empty, ids.Hash(e))
	}
	assert.Equal(t, xxh(concat(u64(3), empty[:], empty[:], empty[:])), ids.Hash(p1d))

	for _, e := range p1d.Elements() {
		set(t, e, "time", 1.0)
	}
	h := ids.Hash(p1d.At(0))
	assert.Equal(t, h, ids.Hash(p1d.At(1)))
	assert.Equal(t, h, ids.Hash(p1d.At(2)))
	assert.Equal(t, xxh(concat(u64(3), h[:], h[:], h[:])), ids.Hash(p1d))
}

func TestHashStruct(t *testing.T) {
	cp := newIDS(t, "3.39.0", "core_profiles")
	code := cp.Struct("code")
	assert.Equal(t, xxh(nil), ids.Hash(code))

	h := func(s string) []byte {
		d := xxh([]byte(s))
		return d[:]
	}
	set(t, code, "name", "name")
	assert.Equal(t, xxh(concat([]byte("name"), h("name"))), ids.Hash(code))

	set(t, code, "version", "version")
	set(t, code, "parameters", "parameters")
	want := xxh(concat(
		[]byte("name"), h("name"),
		[]byte("parameters"), h("parameters"),
		[]byte("version"), h("version"),
	))
	assert.Equal(t, want, ids.Hash(code))
}

func TestHashIgnoresVersionPut(t *testing.T) {
	cp := newIDS(t, "3.39.0", "core_profiles")
	props := cp.Struct("ids_properties")
	set(t, props, "version_put/data_dictionary", "dd")
	set(t, props, "version_put/access_layer", "al")
	set(t, props, "version_put/access_layer_language", "lang")
	assert.Equal(t, xxh(nil), ids.Hash(props))
}

func TestHashIDSProperties(t *testing.T) {
	cp := newIDS(t, "", "core_profiles")
	require.NoError(t, cp.SetTimeMode(ids.TimeModeHomogeneous))
	set(t, &cp.Structure, "ids_properties/comment", "Testing hash function")
	assert.Equal(t, ids.Digest([]byte("3Fw\xab:w7K")), ids.Hash(cp.Struct("ids_properties")))

	// The toplevel hash depends on the data, not on who built it.
	other := ids.Copy(cp)
	assert.Equal(t, ids.Hash(cp), ids.Hash(other))
	set(t, &other.Structure, "ids_properties/comment", "changed")
	assert.NotEqual(t, ids.Hash(cp), ids.Hash(other))
}
