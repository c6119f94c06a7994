package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/briefly-ai/briefly/engine/domain"
)

// encodeVector packs a vector as little-endian float32 words.
func encodeVector(v domain.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a blob written by encodeVector.
func decodeVector(buf []byte) (domain.Vector, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob is %d bytes, not a multiple of 4", len(buf))
	}
	v := make(domain.Vector, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
