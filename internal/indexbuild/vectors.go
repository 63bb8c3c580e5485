package indexbuild

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// LoadVectors decodes a file of little-endian IEEE 754 float32 values into
// vectors of the given dimension. The file carries no header; the vector count
// is derived from its size.
func LoadVectors(path string, dimension int) ([][]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("indexbuild: dimension must be positive, got %d", dimension)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stride := dimension * 4
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("indexbuild: %s has %d bytes, not a multiple of %d (dimension %d)",
			path, len(data), stride, dimension)
	}
	n := len(data) / stride
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dimension)
		row := data[i*stride : (i+1)*stride]
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4:]))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// WriteVectors encodes vectors in the format read by LoadVectors.
func WriteVectors(path string, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	var buf [4]byte
	for _, vec := range vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SequentialIDs returns 0..n-1, the ids used when a request supplies none.
func SequentialIDs(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}
