package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block codec used for snapshot payloads.
type Compression uint8

const (
	// CompressionNone stores blocks raw.
	CompressionNone Compression = 0
	// CompressionLZ4 favours speed. It is the default.
	CompressionLZ4 Compression = 1
	// CompressionZstd favours ratio.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a name ("none", "lz4", "zstd") to a Compression.
// The empty string selects LZ4.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lz4":
		return CompressionLZ4, nil
	case "none", "off":
		return CompressionNone, nil
	case "zstd", "zstandard":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("index: unknown compression %q", name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Block format: [uncompressed uint32][compressed uint32][data...].
// A compressed size of 0 means the data is stored raw.
const (
	blockHeaderSize   = 8
	snapshotBlockSize = 256 * 1024
)

var errShortBlock = errors.New("block truncated")

// appendBlock compresses data with c and appends the framed block to dst.
// Blocks that do not shrink below 90% of their size are stored raw.
func appendBlock(dst, data []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionNone:
	default:
		return nil, fmt.Errorf("index: unknown compression %d", c)
	}

	var hdr [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(len(data)))

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		dst = append(dst, hdr[:]...)
		return append(dst, data...), nil
	}

	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(compressed)))
	dst = append(dst, hdr[:]...)
	return append(dst, compressed...), nil
}

// readBlock decodes the block at the start of src. It returns the
// decompressed bytes and the remainder of src.
func readBlock(src []byte, c Compression) ([]byte, []byte, error) {
	if len(src) < blockHeaderSize {
		return nil, nil, errShortBlock
	}
	rawSize := binary.LittleEndian.Uint32(src[0:])
	compSize := binary.LittleEndian.Uint32(src[4:])
	src = src[blockHeaderSize:]

	if compSize == 0 {
		if uint64(len(src)) < uint64(rawSize) {
			return nil, nil, errShortBlock
		}
		return src[:rawSize], src[rawSize:], nil
	}

	if uint64(len(src)) < uint64(compSize) {
		return nil, nil, errShortBlock
	}
	payload, rest := src[:compSize], src[compSize:]
	out := make([]byte, rawSize)

	switch c {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, nil, err
		}
		if uint32(n) != rawSize {
			return nil, nil, errors.New("decompressed size mismatch")
		}
		return out, rest, nil
	case CompressionZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, nil, err
		}
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(payload, out[:0])
		if err != nil {
			return nil, nil, err
		}
		if uint32(len(decoded)) != rawSize {
			return nil, nil, errors.New("decompressed size mismatch")
		}
		return decoded, rest, nil
	default:
		return nil, nil, fmt.Errorf("compressed block with compression %s", c)
	}
}
