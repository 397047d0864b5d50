package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the payload compression algorithm of an artifact.
// The value is persisted in the artifact header, so constants must not be
// renumbered.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Valid reports whether c is a known compression algorithm.
func (c Compression) Valid() bool {
	return c <= CompressionLZ4
}

// Encoders and decoders are pooled: zstd contexts are expensive to create
// and safe to reuse sequentially.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block format: [UncompressedSize uint32][CompressedSize uint32][Data...]
// CompressedSize == 0 means the data is stored uncompressed.
const blockHeaderSize = 8

// Compress encodes data as a self-describing block using the given algorithm.
// Incompressible payloads (ratio above 0.9) are stored raw.
func Compress(data []byte, c Compression) ([]byte, error) {
	var compressed []byte

	switch c {
	case CompressionNone:
		compressed = nil
	case CompressionZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	default:
		return nil, fmt.Errorf("unknown compression: %d", c)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// Decompress decodes a block produced by Compress.
func Decompress(data []byte, c Compression) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)) < blockHeaderSize+uncompressedSize {
			return nil, errors.New("block data too small")
		}
		return data[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}

	if uint32(len(data)) < blockHeaderSize+compressedSize {
		return nil, errors.New("compressed block data too small")
	}
	payload := data[blockHeaderSize : blockHeaderSize+compressedSize]

	switch c {
	case CompressionZstd:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil

	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil

	default:
		return nil, fmt.Errorf("compressed block with compression %q", c)
	}
}
