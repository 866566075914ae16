package noise

import (
	"errors"
	"math"
	"sync"

	"github.com/aquilax/go-perlin"
)

// Perlin parameters shared by every engine. Changing any of them changes
// every generated world, so they are constants rather than options.
const (
	perlinAlpha   = 2.0
	perlinBeta    = 2.0
	perlinOctaves = 3
)

// maxSample is the largest float64 below 1.
var maxSample = math.Nextafter(1, 0)

// ErrUnseeded is returned when sampling an engine that was never seeded.
var ErrUnseeded = errors.New("noise engine is not seeded")

// Engine is a seedable, deterministic 2D field. Sample is a pure function of
// (seed, x, y): two engines seeded with the same value agree on every point.
type Engine struct {
	mu     sync.RWMutex
	field  *perlin.Perlin
	seed   int64
	seeded bool
}

// NewEngine returns an unseeded engine.
func NewEngine() *Engine {
	return &Engine{}
}

// NewSeededEngine is a convenience for NewEngine followed by Seed.
func NewSeededEngine(v any) (*Engine, error) {
	e := NewEngine()
	if err := e.Seed(v); err != nil {
		return nil, err
	}
	return e, nil
}

// Seed (re)initializes the field from a string or integer seed.
func (e *Engine) Seed(v any) error {
	seed, err := ResolveSeed(v)
	if err != nil {
		return err
	}
	field := perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed)

	e.mu.Lock()
	e.field = field
	e.seed = seed
	e.seeded = true
	e.mu.Unlock()
	return nil
}

// Seeded reports whether Seed has succeeded at least once.
func (e *Engine) Seeded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seeded
}

// SeedInt returns the resolved integer seed, or 0 if unseeded.
func (e *Engine) SeedInt() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seed
}

// Sample returns the field value at (x, y) in [0, 1).
func (e *Engine) Sample(x, y float64) (float64, error) {
	e.mu.RLock()
	field := e.field
	e.mu.RUnlock()
	if field == nil {
		return 0, ErrUnseeded
	}
	return normalize(field.Noise2D(x, y)), nil
}

// normalize maps the roughly [-1, 1] perlin output into [0, 1).
func normalize(v float64) float64 {
	n := (v + 1) / 2
	if n < 0 || math.IsNaN(n) {
		return 0
	}
	if n > maxSample {
		return maxSample
	}
	return n
}

// Shade rescales a sample to a 0-255 gray level.
func Shade(v float64) uint8 {
	s := math.Floor(v * 256)
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// Tint encodes a gray level as a 0xRRGGBB color with equal channels.
func Tint(shade uint8) uint32 {
	s := uint32(shade)
	return s<<16 | s<<8 | s
}
