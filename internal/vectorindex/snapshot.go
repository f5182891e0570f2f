package vectorindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Snapshot layout, little-endian:
//
//	magic "PQIX" | version u32 | dim u32 | model len u32 | model bytes |
//	count u32 | per chunk: len u32 + bytes | count*dim float32 vector matrix
//
// The explicit header makes truncation and foreign files detectable instead
// of silently restoring garbage vectors.
var snapshotMagic = [4]byte{'P', 'Q', 'I', 'X'}

const snapshotVersion = 1

// Save persists the full index state (vectors, chunks, model identity,
// dimension) as an atomic unit: the snapshot is written to a temp file and
// renamed into place.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	data, err := ix.encodeLocked()
	ix.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Load restores index state from a snapshot. A missing file returns
// (false, nil). A snapshot produced by a different embedding model is still
// restored as-is (its vectors remain internally consistent); callers detect
// the mismatch through Model().
func (ix *Index) Load(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading snapshot: %w", err)
	}

	model, dim, chunks, vectors, err := decodeSnapshot(data)
	if err != nil {
		return false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.model = model
	ix.dim = dim
	ix.chunks = chunks
	ix.vectors = vectors
	return true, nil
}

func (ix *Index) encodeLocked() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(snapshotMagic[:])
	putU32(&buf, snapshotVersion)
	putU32(&buf, uint32(ix.dim))
	putU32(&buf, uint32(len(ix.model)))
	buf.WriteString(ix.model)
	putU32(&buf, uint32(len(ix.chunks)))
	for _, c := range ix.chunks {
		putU32(&buf, uint32(len(c)))
		buf.WriteString(c)
	}
	for i, v := range ix.vectors {
		if len(v) != ix.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, index has %d", i, len(v), ix.dim)
		}
		for _, f := range v {
			putU32(&buf, math.Float32bits(f))
		}
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (model string, dim int, chunks []string, vectors [][]float32, err error) {
	r := &snapshotReader{data: data}

	var magic [4]byte
	r.read(magic[:])
	if magic != snapshotMagic {
		return "", 0, nil, nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := r.u32(); v != snapshotVersion {
		return "", 0, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	dim = int(r.u32())
	model = r.str()
	count := int(r.u32())
	if r.failed {
		return "", 0, nil, nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if dim < 0 || count < 0 || (count > 0 && dim == 0) {
		return "", 0, nil, nil, fmt.Errorf("%w: implausible header (dim=%d count=%d)", ErrCorrupt, dim, count)
	}

	// count and dim are attacker-controlled until proven consistent with
	// the file size: every chunk costs at least its 4-byte length prefix
	// plus a dim-float32 row, so a header claiming more than the remaining
	// bytes can hold must be rejected before sizing any allocation.
	remaining := uint64(len(data) - r.off)
	if uint64(count)*4 > remaining || (count > 0 && uint64(dim) > (remaining-uint64(count)*4)/(uint64(count)*4)) {
		return "", 0, nil, nil, fmt.Errorf("%w: header claims %d chunks of dim %d in %d bytes", ErrCorrupt, count, dim, remaining)
	}

	chunks = make([]string, count)
	for i := 0; i < count && !r.failed; i++ {
		chunks[i] = r.str()
	}
	if r.failed {
		return "", 0, nil, nil, fmt.Errorf("%w: truncated chunk data", ErrCorrupt)
	}

	vectors = make([][]float32, count)
	for i := 0; i < count && !r.failed; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(r.u32())
		}
		vectors[i] = vec
	}
	if r.failed {
		return "", 0, nil, nil, fmt.Errorf("%w: truncated vector data", ErrCorrupt)
	}
	if r.off != len(data) {
		return "", 0, nil, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-r.off)
	}
	if count == 0 {
		chunks, vectors = nil, nil
	}
	return model, dim, chunks, vectors, nil
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// snapshotReader tracks a cursor over the raw snapshot and latches a
// failure flag on any out-of-bounds read so decode errors are checked once
// per section instead of per field.
type snapshotReader struct {
	data   []byte
	off    int
	failed bool
}

func (r *snapshotReader) read(dst []byte) {
	if r.failed || r.off+len(dst) > len(r.data) {
		r.failed = true
		return
	}
	copy(dst, r.data[r.off:])
	r.off += len(dst)
}

func (r *snapshotReader) u32() uint32 {
	if r.failed || r.off+4 > len(r.data) {
		r.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *snapshotReader) str() string {
	n := int(r.u32())
	if r.failed || n < 0 || r.off+n > len(r.data) {
		r.failed = true
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}
