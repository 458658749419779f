package vectorindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-search/internal/domain"
)

// Serialized layout, little endian:
//
//	magic   [4]byte "LSIX"
//	version uint32
//	dim     uint32
//	n       uint32
//	data    float32[n*dim]
var magic = [4]byte{'L', 'S', 'I', 'X'}

const formatVersion uint32 = 1

const headerSize = 16

// WriteTo streams the index in its binary format.
func (ix *Index) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], formatVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(ix.dim))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(ix.Len()))
	if _, err := bw.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("vectorindex: write header: %w", err)
	}
	written := int64(headerSize)

	var buf [4]byte
	for _, f := range ix.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return written, fmt.Errorf("vectorindex: write data: %w", err)
		}
		written += 4
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("vectorindex: flush: %w", err)
	}
	return written, nil
}

// ReadFrom replaces the index contents with a stream produced by WriteTo.
func (ix *Index) ReadFrom(r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return 0, fmt.Errorf("vectorindex: read header: %w", err)
	}
	read := int64(headerSize)
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return read, errors.New("vectorindex: bad magic")
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != formatVersion {
		return read, fmt.Errorf("vectorindex: unsupported format version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(hdr[8:12]))
	n := int(binary.LittleEndian.Uint32(hdr[12:16]))
	if dim <= 0 {
		return read, fmt.Errorf("vectorindex: invalid dimension %d", dim)
	}

	data := make([]float32, n*dim)
	var buf [4]byte
	for i := range data {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return read, fmt.Errorf("vectorindex: truncated data at value %d: %w", i, err)
		}
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
		read += 4
	}
	ix.dim = dim
	ix.data = data
	return read, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (ix *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + 4*len(ix.data))
	if _, err := ix.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (ix *Index) UnmarshalBinary(data []byte) error {
	_, err := ix.ReadFrom(bytes.NewReader(data))
	return err
}

// Save writes the index to path. The file is written next to its destination
// and renamed into place, so readers never observe a partial index.
func (ix *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("vectorindex: create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vectorindex: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := ix.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vectorindex: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("vectorindex: rename into %q: %w", path, err)
	}
	return nil
}

// Load reads an index written by Save. A missing, unreadable or corrupt file
// is reported as domain.ErrIndexNotFound.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open %q: %w: %w", path, domain.ErrIndexNotFound, err)
	}
	defer f.Close()

	ix := &Index{}
	if _, err := ix.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("vectorindex: load %q: %w: %w", path, domain.ErrIndexNotFound, err)
	}
	return ix, nil
}
