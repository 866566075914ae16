package compression

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/earthring/chunkstream/internal/generator"
)

const (
	// Magic number for chunk tile format
	TileMagic = "TILE"
	// Current format version
	TileVersion = 1
	// Gzip compression level (balance between size and speed)
	DefaultGzipLevel = 6
)

// TileHeaderSize is the encoded size of TileHeader.
const TileHeaderSize = 18

// Header flag bits.
const (
	FlagDebugBorder uint8 = 1 << iota
)

// Codec names the compression wrapped around the binary tile payload.
type Codec string

const (
	CodecGzip Codec = "binary_gzip"
	CodecZstd Codec = "binary_zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// TileHeader is the fixed-size binary header that precedes the shades.
type TileHeader struct {
	Magic     [4]byte
	Version   uint8
	Flags     uint8
	ChunkSize uint16
	TileSize  uint16
	ChunkX    int32
	ChunkY    int32
}

// TileData is a decoded tile payload. Shades are row-major.
type TileData struct {
	ChunkX    int
	ChunkY    int
	ChunkSize int
	TileSize  int
	Debug     bool
	Shades    []uint8
}

// EncodeTiles writes the uncompressed binary form of content.
func EncodeTiles(content *generator.Content) ([]byte, error) {
	if content == nil {
		return nil, fmt.Errorf("content is nil")
	}
	shades := content.Shades()
	if len(shades) == 0 {
		return nil, fmt.Errorf("chunk %s has no tiles", content.Key)
	}
	if content.Size <= 0 || content.Size*content.Size != len(shades) {
		return nil, fmt.Errorf("chunk %s has %d tiles for size %d", content.Key, len(shades), content.Size)
	}
	if content.Size > 0xffff {
		return nil, fmt.Errorf("chunk size %d exceeds 16-bit limit", content.Size)
	}
	tileSize := int(content.Sprites[0].Size)

	header := TileHeader{
		Version:   TileVersion,
		ChunkSize: uint16(content.Size),
		TileSize:  uint16(tileSize),
		ChunkX:    int32(content.Key.X),
		ChunkY:    int32(content.Key.Y),
	}
	copy(header.Magic[:], TileMagic)
	if content.Border != nil {
		header.Flags |= FlagDebugBorder
	}

	var buf bytes.Buffer
	buf.Grow(binary.Size(header) + len(shades))
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	buf.Write(shades)
	return buf.Bytes(), nil
}

// DecodeTiles parses the uncompressed binary form.
func DecodeTiles(data []byte) (*TileData, error) {
	var header TileHeader
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != TileMagic {
		return nil, fmt.Errorf("invalid magic number: %q", header.Magic[:])
	}
	if header.Version != TileVersion {
		return nil, fmt.Errorf("unsupported version: %d", header.Version)
	}

	n := int(header.ChunkSize) * int(header.ChunkSize)
	shades := make([]uint8, n)
	if _, err := io.ReadFull(r, shades); err != nil {
		return nil, fmt.Errorf("failed to read %d shades: %w", n, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after shades", r.Len())
	}

	return &TileData{
		ChunkX:    int(header.ChunkX),
		ChunkY:    int(header.ChunkY),
		ChunkSize: int(header.ChunkSize),
		TileSize:  int(header.TileSize),
		Debug:     header.Flags&FlagDebugBorder != 0,
		Shades:    shades,
	}, nil
}

// CompressTiles encodes content and compresses it with gzip.
func CompressTiles(content *generator.Content) ([]byte, error) {
	return CompressTilesWith(content, CodecGzip)
}

// CompressTilesWith encodes content and compresses it with codec.
func CompressTilesWith(content *generator.Content, codec Codec) ([]byte, error) {
	raw, err := EncodeTiles(content)
	if err != nil {
		return nil, err
	}
	switch codec {
	case CodecGzip:
		return gzipCompress(raw, DefaultGzipLevel)
	case CodecZstd:
		return zstdCompress(raw)
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

// DecompressTiles reverses CompressTiles. The codec is detected from the
// stream's magic bytes.
func DecompressTiles(data []byte) (*TileData, error) {
	var (
		raw []byte
		err error
	)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		raw, err = gzipDecompress(data)
	case bytes.HasPrefix(data, zstdMagic):
		raw, err = zstdDecompress(data)
	default:
		return nil, errors.New("unrecognized compression format")
	}
	if err != nil {
		return nil, err
	}
	return DecodeTiles(raw)
}

// gzipCompress compresses data using gzip
func gzipCompress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write to gzip: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip data: %w", err)
	}
	return raw, nil
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read zstd data: %w", err)
	}
	return raw, nil
}
