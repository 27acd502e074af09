package ids

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/zeebo/xxh3"
)

// Digest is an 8 byte xxh3-64 digest in big-endian order.
type Digest [8]byte

func digest(b []byte) Digest {
	var d Digest
	binary.BigEndian.PutUint64(d[:], xxh3.Hash(b))
	return d
}

// Hash computes a content hash of a node.
//
//	STR_0D        utf-8 bytes
//	STR_1D        u64 length | element hashes
//	INT/FLT/CPX   little-endian int32 / float64 / (real, imag) float64
//	N-D arrays    u8 ndim | u64 per dimension | Fortran-order data
//	AoS           u64 length | element hashes
//	structures    name | hash for every filled child, sorted by name
//
// ids_properties/version_put is excluded so the hash does not depend on who stored
// the data.
func Hash(n Node) Digest {
	switch t := n.(type) {
	case *Toplevel:
		return hashStructure(&t.Structure)
	case *Structure:
		return hashStructure(t)
	case *StructArray:
		buf := binary.LittleEndian.AppendUint64(nil, uint64(t.Len()))
		for _, e := range t.Elements() {
			d := hashStructure(e)
			buf = append(buf, d[:]...)
		}
		return digest(buf)
	case *Primitive:
		return digest(primitiveBytes(t.Value()))
	}
	return digest(nil)
}

func hashStructure(s *Structure) Digest {
	children := s.NonEmpty()
	slices.SortFunc(children, func(a, b Node) int {
		an, bn := a.Metadata().Name, b.Metadata().Name
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	})
	var buf []byte
	for _, c := range children {
		if c.Metadata().Path == "ids_properties/version_put" {
			continue
		}
		d := Hash(c)
		buf = append(buf, c.Metadata().Name...)
		buf = append(buf, d[:]...)
	}
	return digest(buf)
}

func primitiveBytes(v any) []byte {
	le := binary.LittleEndian
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []string:
		buf := le.AppendUint64(nil, uint64(len(t)))
		for _, s := range t {
			d := digest([]byte(s))
			buf = append(buf, d[:]...)
		}
		return buf
	case int32:
		return le.AppendUint32(nil, uint32(t))
	case float64:
		return le.AppendUint64(nil, math.Float64bits(t))
	case complex128:
		buf := le.AppendUint64(nil, math.Float64bits(real(t)))
		return le.AppendUint64(buf, math.Float64bits(imag(t)))
	case *Array[int32]:
		buf := arrayHeader(t.Shape())
		for _, x := range t.FortranOrder() {
			buf = le.AppendUint32(buf, uint32(x))
		}
		return buf
	case *Array[float64]:
		buf := arrayHeader(t.Shape())
		for _, x := range t.FortranOrder() {
			buf = le.AppendUint64(buf, math.Float64bits(x))
		}
		return buf
	case *Array[complex128]:
		buf := arrayHeader(t.Shape())
		for _, x := range t.FortranOrder() {
			buf = le.AppendUint64(buf, math.Float64bits(real(x)))
			buf = le.AppendUint64(buf, math.Float64bits(imag(x)))
		}
		return buf
	}
	return nil
}

func arrayHeader(shape []int) []byte {
	buf := []byte{byte(len(shape))}
	for _, s := range shape {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s))
	}
	return buf
}
