package knowledge

import (
	"encoding/binary"
	"math"
)

// encodeFloat32SliceToBlob packs a float32 vector into the little-endian
// blob layout sqlite-vec uses.
func encodeFloat32SliceToBlob(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// decodeFloat32SliceFromBlob is the inverse of encodeFloat32SliceToBlob.
func decodeFloat32SliceFromBlob(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is empty or zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
