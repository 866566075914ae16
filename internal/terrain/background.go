package terrain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/earthring/chunkstream/internal/noise"
	"github.com/earthring/chunkstream/internal/workerpool"
)

// JobGenerateBackground is the worker job type that computes a chunk's tile field.
const JobGenerateBackground = "generate_background"

// DefaultNoiseDivisor scales world tile coordinates before sampling the field.
// Larger values give broader features.
const DefaultNoiseDivisor = 24.0

// BackgroundRequest is the payload of a generate_background job.
type BackgroundRequest struct {
	ChunkX       int     `json:"chunk_x"`
	ChunkY       int     `json:"chunk_y"`
	OffsetX      float64 `json:"offset_x"` // pixel-space origin of the chunk
	OffsetY      float64 `json:"offset_y"`
	ChunkSize    int     `json:"chunk_size"`
	TileSize     int     `json:"tile_size"`
	NoiseDivisor float64 `json:"noise_divisor"`
	Seed         int64   `json:"seed"`
}

// Tile is one generated tile. X and Y are pixel positions relative to the
// chunk origin.
type Tile struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Shade uint8   `json:"shade"`
	Tint  uint32  `json:"tint"`
}

// BackgroundResult is the reply to a generate_background job.
type BackgroundResult struct {
	ChunkX int    `json:"chunk_x"`
	ChunkY int    `json:"chunk_y"`
	Tiles  []Tile `json:"tiles"`
}

// Validate checks the request parameters before any sampling happens.
func (r BackgroundRequest) Validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.TileSize <= 0 {
		return fmt.Errorf("tile_size must be positive, got %d", r.TileSize)
	}
	if r.NoiseDivisor <= 0 {
		return fmt.Errorf("noise_divisor must be positive, got %v", r.NoiseDivisor)
	}
	return nil
}

// GenerateBackground samples one shade per tile, row by row. The engine must
// already be seeded with req.Seed; both the worker handler and the in-process
// fallback go through this function so their output is identical.
func GenerateBackground(engine *noise.Engine, req BackgroundRequest) (BackgroundResult, error) {
	if err := req.Validate(); err != nil {
		return BackgroundResult{}, err
	}
	size := req.ChunkSize
	tile := float64(req.TileSize)
	baseX := int(req.OffsetX) / req.TileSize
	baseY := int(req.OffsetY) / req.TileSize

	tiles := make([]Tile, 0, size*size)
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			v, err := engine.Sample(
				float64(baseX+i)/req.NoiseDivisor,
				float64(baseY+j)/req.NoiseDivisor,
			)
			if err != nil {
				return BackgroundResult{}, err
			}
			shade := noise.Shade(v)
			tiles = append(tiles, Tile{
				X:     float64(i) * tile,
				Y:     float64(j) * tile,
				Shade: shade,
				Tint:  noise.Tint(shade),
			})
		}
	}
	return BackgroundResult{ChunkX: req.ChunkX, ChunkY: req.ChunkY, Tiles: tiles}, nil
}

// Handle is the worker-side handler for generate_background jobs. It reseeds
// the worker's engine when the job carries a different seed.
func Handle(ctx context.Context, engine *noise.Engine, job workerpool.Job) (json.RawMessage, error) {
	if job.Type != JobGenerateBackground {
		return nil, fmt.Errorf("terrain: unexpected job type %q", job.Type)
	}
	var req BackgroundRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, fmt.Errorf("terrain: decode request: %w", err)
	}
	if !engine.Seeded() || engine.SeedInt() != req.Seed {
		if err := engine.Seed(req.Seed); err != nil {
			return nil, fmt.Errorf("terrain: seed engine: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := GenerateBackground(engine, req)
	if err != nil {
		return nil, fmt.Errorf("terrain: generate chunk %d,%d: %w", req.ChunkX, req.ChunkY, err)
	}
	return json.Marshal(result)
}

// NewJob encodes a request as a pool job.
func NewJob(req BackgroundRequest) (workerpool.Job, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return workerpool.Job{}, fmt.Errorf("terrain: encode request: %w", err)
	}
	return workerpool.Job{Type: JobGenerateBackground, Payload: payload}, nil
}
