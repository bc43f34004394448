package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeFloat32s packs s as little-endian IEEE 754 values.
func EncodeFloat32s(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32s unpacks a blob written by EncodeFloat32s.
func DecodeFloat32s(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of %d", len(b), size)
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out, nil
}
