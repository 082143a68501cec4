package index

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/crc32"

	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// Snapshot layout (little endian):
//
//	[0:4]   magic "VSIX"
//	[4:6]   format version
//	[6]     metric
//	[7]     compression
//	[8:12]  dimension
//	[12:16] record count
//	[16:24] store version
//	[24:28] block count
//	[28:32] reserved
//	blocks...
//	[crc32c of everything above]
//
// The uncompressed payload is a sequence of uvarint length-prefixed
// msgpack records.
const (
	snapshotMagic      = "VSIX"
	snapshotVersion    = 1
	snapshotHeaderSize = 32
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// SnapshotHeader describes a snapshot without decoding its payload.
type SnapshotHeader struct {
	Version      uint16
	Metric       distance.Metric
	Compression  Compression
	Dimension    int
	Count        int
	StoreVersion uint64
}

// WriteSnapshot serialises the index to w. storeVersion records the store
// state the index reflects so a reader can decide whether the snapshot is
// still current.
func (f *Flat) WriteSnapshot(w io.Writer, storeVersion uint64, c Compression) error {
	payload, count, err := f.encodePayload()
	if err != nil {
		return err
	}

	buf := make([]byte, snapshotHeaderSize, snapshotHeaderSize+len(payload)/2+64)
	copy(buf[0:4], snapshotMagic)
	binary.LittleEndian.PutUint16(buf[4:], snapshotVersion)
	buf[6] = uint8(f.metric)
	buf[7] = uint8(c)
	binary.LittleEndian.PutUint32(buf[8:], uint32(f.dim))
	binary.LittleEndian.PutUint32(buf[12:], uint32(count))
	binary.LittleEndian.PutUint64(buf[16:], storeVersion)

	blocks := 0
	for off := 0; off < len(payload); off += snapshotBlockSize {
		end := min(off+snapshotBlockSize, len(payload))
		buf, err = appendBlock(buf, payload[off:end], c)
		if err != nil {
			return fmt.Errorf("index: compress snapshot: %w", err)
		}
		blocks++
	}
	binary.LittleEndian.PutUint32(buf[24:], uint32(blocks))

	buf = binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, crcTable))

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("index: write snapshot: %w", err)
	}
	return nil
}

func (f *Flat) encodePayload() ([]byte, int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := f.state
	var (
		payload []byte
		count   int
		c       = codec.Msgpack{}
	)
	for ord, vec := range s.vectors {
		if vec == nil {
			continue
		}
		doc, _ := s.meta.Get(uint32(ord))
		b, err := store.EncodeRecord(c, model.Record{ID: s.ids[ord], Vector: vec, Metadata: doc})
		if err != nil {
			return nil, 0, fmt.Errorf("index: snapshot: %w", err)
		}
		payload = binary.AppendUvarint(payload, uint64(len(b)))
		payload = append(payload, b...)
		count++
	}
	return payload, count, nil
}

// ParseSnapshotHeader validates the framing and checksum of data and
// returns its header.
func ParseSnapshotHeader(data []byte) (SnapshotHeader, error) {
	if len(data) < snapshotHeaderSize+4 {
		return SnapshotHeader{}, fmt.Errorf("%w: %d bytes", ErrCorruptSnapshot, len(data))
	}
	if string(data[0:4]) != snapshotMagic {
		return SnapshotHeader{}, fmt.Errorf("%w: bad magic", ErrCorruptSnapshot)
	}

	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.Checksum(body, crcTable) != sum {
		return SnapshotHeader{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	h := SnapshotHeader{
		Version:      binary.LittleEndian.Uint16(data[4:]),
		Metric:       distance.Metric(data[6]),
		Compression:  Compression(data[7]),
		Dimension:    int(binary.LittleEndian.Uint32(data[8:])),
		Count:        int(binary.LittleEndian.Uint32(data[12:])),
		StoreVersion: binary.LittleEndian.Uint64(data[16:]),
	}
	if h.Version != snapshotVersion {
		return SnapshotHeader{}, fmt.Errorf("%w: unsupported format version %d", ErrCorruptSnapshot, h.Version)
	}
	if !h.Metric.Valid() {
		return SnapshotHeader{}, fmt.Errorf("%w: unknown metric %d", ErrCorruptSnapshot, data[6])
	}
	if h.Dimension <= 0 {
		return SnapshotHeader{}, fmt.Errorf("%w: dimension %d", ErrCorruptSnapshot, h.Dimension)
	}
	return h, nil
}

// DecodeSnapshot rebuilds an index from a snapshot produced by WriteSnapshot.
func DecodeSnapshot(data []byte) (*Flat, SnapshotHeader, error) {
	h, err := ParseSnapshotHeader(data)
	if err != nil {
		return nil, SnapshotHeader{}, err
	}

	f, err := NewFlat(h.Dimension, h.Metric)
	if err != nil {
		return nil, SnapshotHeader{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	nblocks := binary.LittleEndian.Uint32(data[24:])
	src := data[snapshotHeaderSize : len(data)-4]

	var payload []byte
	for i := uint32(0); i < nblocks; i++ {
		var block []byte
		block, src, err = readBlock(src, h.Compression)
		if err != nil {
			return nil, SnapshotHeader{}, fmt.Errorf("%w: block %d: %v", ErrCorruptSnapshot, i, err)
		}
		payload = append(payload, block...)
	}
	if len(src) != 0 {
		return nil, SnapshotHeader{}, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, len(src))
	}

	c := codec.Msgpack{}
	s := f.state
	for n := 0; n < h.Count; n++ {
		size, read := binary.Uvarint(payload)
		if read <= 0 || uint64(len(payload)-read) < size {
			return nil, SnapshotHeader{}, fmt.Errorf("%w: record %d truncated", ErrCorruptSnapshot, n)
		}
		payload = payload[read:]

		rec, err := store.DecodeRecord(c, payload[:size])
		if err != nil {
			return nil, SnapshotHeader{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		payload = payload[size:]

		if err := store.Validate(rec, h.Dimension); err != nil {
			return nil, SnapshotHeader{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		s.add(rec)
	}
	if len(payload) != 0 {
		return nil, SnapshotHeader{}, fmt.Errorf("%w: %d bytes after last record", ErrCorruptSnapshot, len(payload))
	}
	return f, h, nil
}

// ReadSnapshot reads a snapshot from r and returns the index together
// with the store version it was written at.
func ReadSnapshot(r io.Reader) (*Flat, uint64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("index: read snapshot: %w", err)
	}
	f, h, err := DecodeSnapshot(data)
	if err != nil {
		return nil, 0, err
	}
	return f, h.StoreVersion, nil
}
