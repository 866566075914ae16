package compression

import (
	"encoding/base64"
	"fmt"

	"github.com/earthring/chunkstream/internal/generator"
)

// CompressedTiles represents compressed tile data ready for transmission
type CompressedTiles struct {
	Format           Codec  `json:"format"`
	Data             string `json:"data"`              // Base64-encoded compressed data
	Size             int    `json:"size"`              // Compressed size in bytes
	UncompressedSize int    `json:"uncompressed_size"` // Uncompressed size in bytes
}

// FormatCompressedTiles formats compressed tile data for JSON transmission
func FormatCompressedTiles(codec Codec, compressedData []byte, uncompressedSize int) *CompressedTiles {
	return &CompressedTiles{
		Format:           codec,
		Data:             base64.StdEncoding.EncodeToString(compressedData),
		Size:             len(compressedData),
		UncompressedSize: uncompressedSize,
	}
}

// CompressAndFormatTiles compresses content with gzip and formats it for
// transmission.
func CompressAndFormatTiles(content *generator.Content) (*CompressedTiles, error) {
	return CompressAndFormatTilesWith(CodecGzip, content)
}

// CompressAndFormatTilesWith is CompressAndFormatTiles with an explicit codec.
func CompressAndFormatTilesWith(codec Codec, content *generator.Content) (*CompressedTiles, error) {
	compressed, err := CompressTilesWith(content, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to compress chunk tiles: %w", err)
	}
	return FormatCompressedTiles(codec, compressed, TileHeaderSize+len(content.Sprites)), nil
}

// ParseCompressedTiles decodes a transmitted payload.
func ParseCompressedTiles(ct *CompressedTiles) (*TileData, error) {
	if ct == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	data, err := base64.StdEncoding.DecodeString(ct.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) != ct.Size {
		return nil, fmt.Errorf("size mismatch: header says %d, got %d", ct.Size, len(data))
	}
	return DecompressTiles(data)
}
