package search

import (
	"encoding/binary"
	"math"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// encodeFloat32Blob packs a vector as little-endian float32s, the
// on-disk shape of store.EmbeddingRow.FastEmbedding/QualityEmbedding.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeFloat32Blob unpacks a blob produced by encodeFloat32Blob. A
// length not a multiple of 4 bytes means the stored row is corrupt.
func decodeFloat32Blob(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errs.New(errs.Internal, "search: embedding blob length is not a multiple of 4 bytes")
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
