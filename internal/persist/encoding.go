package persist

import (
	"encoding/binary"
	"math"
)

// encodeFloat32Blob packs a dense embedding into a little-endian byte blob
// for storage in a SQLite BLOB column. Returns nil for an empty vector so
// the column stores NULL rather than a zero-length blob.
func encodeFloat32Blob(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// decodeFloat32Blob is the inverse of encodeFloat32Blob.
func decodeFloat32Blob(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
