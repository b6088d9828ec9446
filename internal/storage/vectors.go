package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serializes a float32 slice to little-endian bytes, the BLOB
// layout of article_embeddings.embedding on SQLite.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVectorInto decodes little-endian bytes into buf, reusing its backing
// array when large enough. A length that is not a multiple of 4 means the
// row is corrupt.
func DecodeVectorInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}
