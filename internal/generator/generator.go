package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/noise"
	"github.com/earthring/chunkstream/internal/performance"
	"github.com/earthring/chunkstream/internal/terrain"
	"github.com/earthring/chunkstream/internal/workerpool"
)

// DebugBorderColor is the tint of the debug overlay.
const DebugBorderColor uint32 = 0xff0000

// Executor runs pool jobs. *workerpool.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, job workerpool.Job) (json.RawMessage, error)
}

// Meta is the immutable per-session generation configuration.
type Meta struct {
	ChunkSize int
	TileSize  int
	Seed      any
	Debug     bool
}

// Stats counts chunks by the path that produced them.
type Stats struct {
	Worker   int64 `json:"worker"`
	Fallback int64 `json:"fallback"`
}

// Option configures a Generator.
type Option func(*Generator)

// WithProfiler records generation timings.
func WithProfiler(p *performance.Profiler) Option {
	return func(g *Generator) { g.profiler = p }
}

// Generator builds chunk content. Tile fields come from the worker pool;
// when that path fails for any reason the same field is computed in-process,
// so a chunk is never left unrendered.
type Generator struct {
	meta     Meta
	seed     int64
	exec     Executor
	textures *TexturePool
	profiler *performance.Profiler

	fallbackOnce sync.Once
	fallback     *noise.Engine
	fallbackErr  error

	workerCount   atomic.Int64
	fallbackCount atomic.Int64
}

// New validates meta and returns a generator. exec may be nil, in which case
// every chunk is generated in-process.
func New(meta Meta, exec Executor, opts ...Option) (*Generator, error) {
	if meta.ChunkSize <= 0 || meta.TileSize <= 0 {
		return nil, fmt.Errorf("chunk size and tile size must be positive (got %d, %d)", meta.ChunkSize, meta.TileSize)
	}
	seed, err := noise.ResolveSeed(meta.Seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	g := &Generator{
		meta:     meta,
		seed:     seed,
		exec:     exec,
		textures: NewTexturePool(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Meta returns the generator's configuration.
func (g *Generator) Meta() Meta {
	return g.meta
}

// Request builds the generate_background request for a chunk.
func (g *Generator) Request(key chunk.Key) terrain.BackgroundRequest {
	span := float64(g.meta.ChunkSize * g.meta.TileSize)
	return terrain.BackgroundRequest{
		ChunkX:       key.X,
		ChunkY:       key.Y,
		OffsetX:      float64(key.X) * span,
		OffsetY:      float64(key.Y) * span,
		ChunkSize:    g.meta.ChunkSize,
		TileSize:     g.meta.TileSize,
		NoiseDivisor: terrain.DefaultNoiseDivisor,
		Seed:         g.seed,
	}
}

// GenerateChunk produces the content for key. Worker failures are recovered
// locally; only cancellation of ctx is returned as an error.
func (g *Generator) GenerateChunk(ctx context.Context, key chunk.Key) (*Content, error) {
	req := g.Request(key)

	source := SourceWorker
	result, err := g.viaWorker(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if g.exec != nil {
			log.Printf("[Generator] worker path failed for chunk %s, generating in-process: %v", key, err)
		}
		source = SourceFallback
		result, err = g.viaFallback(req)
		if err != nil {
			return nil, fmt.Errorf("fallback generation for chunk %s: %w", key, err)
		}
	}

	if source == SourceWorker {
		g.workerCount.Add(1)
	} else {
		g.fallbackCount.Add(1)
	}
	g.profiler.Incr("generator." + string(source))

	return g.build(key, req, result, source), nil
}

func (g *Generator) viaWorker(ctx context.Context, req terrain.BackgroundRequest) (terrain.BackgroundResult, error) {
	if g.exec == nil {
		return terrain.BackgroundResult{}, fmt.Errorf("no worker pool")
	}
	defer g.profiler.Track("generator.worker")()

	job, err := terrain.NewJob(req)
	if err != nil {
		return terrain.BackgroundResult{}, err
	}
	raw, err := g.exec.Execute(ctx, job)
	if err != nil {
		return terrain.BackgroundResult{}, err
	}
	return terrain.ValidateResult(raw, req)
}

func (g *Generator) viaFallback(req terrain.BackgroundRequest) (terrain.BackgroundResult, error) {
	defer g.profiler.Track("generator.fallback")()

	g.fallbackOnce.Do(func() {
		g.fallback, g.fallbackErr = noise.NewSeededEngine(g.seed)
	})
	if g.fallbackErr != nil {
		return terrain.BackgroundResult{}, g.fallbackErr
	}
	return terrain.GenerateBackground(g.fallback, req)
}

func (g *Generator) build(key chunk.Key, req terrain.BackgroundRequest, result terrain.BackgroundResult, source Source) *Content {
	tile := float64(g.meta.TileSize)
	content := &Content{
		Key:     key,
		OriginX: req.OffsetX,
		OriginY: req.OffsetY,
		Size:    g.meta.ChunkSize,
		Sprites: make([]Sprite, len(result.Tiles)),
		Source:  source,
		pool:    g.textures,
	}
	for i, t := range result.Tiles {
		content.Sprites[i] = Sprite{
			X:       t.X,
			Y:       t.Y,
			Size:    tile,
			Shade:   t.Shade,
			Tint:    t.Tint,
			Texture: g.textures.Acquire(t.Shade),
		}
	}

	// The overlay goes on after the tiles and never touches them.
	if g.meta.Debug {
		span := float64(g.meta.ChunkSize) * tile
		content.Border = &Border{Width: span, Height: span, Color: DebugBorderColor}
	}
	return content
}

// Stats reports how many chunks each path produced.
func (g *Generator) Stats() Stats {
	return Stats{Worker: g.workerCount.Load(), Fallback: g.fallbackCount.Load()}
}

// Textures exposes the generator's texture pool.
func (g *Generator) Textures() *TexturePool {
	return g.textures
}

// Destroy releases resources the generator created. The worker pool is not
// owned by the generator and is left running.
func (g *Generator) Destroy() {
	g.textures.Destroy()
}
