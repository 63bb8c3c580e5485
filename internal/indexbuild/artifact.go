package indexbuild

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const artifactVersion uint32 = 1

var artifactMagic = [4]byte{'I', 'F', 'G', 'R'}

// ErrBadArtifact is returned when a file is not a graph artifact.
var ErrBadArtifact = errors.New("indexbuild: not a graph artifact")

// Artifact layout, little endian:
//
//	magic "IFGR" | version u32 | params length u32 | params JSON
//	dimension u32 | count u64 | degree u32
//	ids      count × i64
//	vectors  count × dimension × f32
//	edges    count × degree × i32, -1 padded

// WriteArtifact serializes g to path. The file appears atomically: it is
// written under a temporary name and renamed on success.
func WriteArtifact(path string, g *Graph) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	params, err := json.Marshal(g.Params)
	if err != nil {
		return err
	}

	w := bufio.NewWriterSize(f, 1<<20)
	put := func(v any) {
		if err == nil {
			err = binary.Write(w, binary.LittleEndian, v)
		}
	}
	put(artifactMagic)
	put(artifactVersion)
	put(uint32(len(params)))
	if err == nil {
		_, err = w.Write(params)
	}
	put(uint32(g.Dimension))
	put(uint64(len(g.Vectors)))
	put(uint32(g.Degree))
	put(g.IDs)
	for _, v := range g.Vectors {
		put(v)
	}
	row := make([]int32, g.Degree)
	for _, nbrs := range g.Neighbors {
		for i := range row {
			row[i] = -1
		}
		copy(row, nbrs)
		put(row)
	}
	if err != nil {
		return fmt.Errorf("indexbuild: write %s: %w", path, err)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadArtifact loads a graph written by WriteArtifact.
func ReadArtifact(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != artifactMagic {
		return nil, ErrBadArtifact
	}
	var version, paramsLen uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != artifactVersion {
		return nil, fmt.Errorf("indexbuild: unsupported artifact version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &paramsLen); err != nil {
		return nil, err
	}
	raw := make([]byte, paramsLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, err
	}
	g := &Graph{}
	if err := json.Unmarshal(raw, &g.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}

	var dim, degree uint32
	var count uint64
	for _, v := range []any{&dim, &count, &degree} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	g.Dimension, g.Degree = int(dim), int(degree)

	g.IDs = make([]int64, count)
	if err := binary.Read(r, binary.LittleEndian, g.IDs); err != nil {
		return nil, err
	}
	g.Vectors = make([][]float32, count)
	for i := range g.Vectors {
		g.Vectors[i] = make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, g.Vectors[i]); err != nil {
			return nil, err
		}
	}
	g.Neighbors = make([][]int32, count)
	row := make([]int32, degree)
	for i := range g.Neighbors {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, err
		}
		var nbrs []int32
		for _, id := range row {
			if id >= 0 {
				nbrs = append(nbrs, id)
			}
		}
		g.Neighbors[i] = nbrs
	}
	return g, nil
}
