package indexer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// WriteEmbeddings writes vectors row-major as raw little-endian float32 with
// no header, replacing path atomically. Every row must have the same length.
func WriteEmbeddings(path string, vecs [][]float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("WriteEmbeddings: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("WriteEmbeddings: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	var buf [4]byte
	for i, v := range vecs {
		if len(v) != len(vecs[0]) {
			tmp.Close()
			return fmt.Errorf("WriteEmbeddings: row %d has length %d, expected %d", i, len(v), len(vecs[0]))
		}
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
			if _, err := w.Write(buf[:]); err != nil {
				tmp.Close()
				return fmt.Errorf("WriteEmbeddings: write: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("WriteEmbeddings: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("WriteEmbeddings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("WriteEmbeddings: rename: %w", err)
	}
	return nil
}
