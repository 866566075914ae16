package generator

import (
	"sync"

	"github.com/earthring/chunkstream/internal/chunk"
)

// Source records which path produced a chunk's tiles.
type Source string

const (
	SourceWorker   Source = "worker"
	SourceFallback Source = "fallback"
)

// Sprite is one tile's visual primitive. X and Y are relative to the chunk
// origin.
type Sprite struct {
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Size    float64  `json:"size"`
	Shade   uint8    `json:"shade"`
	Tint    uint32   `json:"tint"`
	Texture *Texture `json:"-"`
}

// Border is the debug overlay drawn around a chunk.
type Border struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Color  uint32  `json:"color"`
}

// Content is the fully built content of one chunk.
type Content struct {
	Key     chunk.Key `json:"key"`
	OriginX float64   `json:"origin_x"`
	OriginY float64   `json:"origin_y"`
	Size    int       `json:"size"`
	Sprites []Sprite  `json:"sprites"`
	Border  *Border   `json:"border,omitempty"`
	Source  Source    `json:"source"`

	pool      *TexturePool
	mu        sync.Mutex
	destroyed bool
}

// Shades returns the tile shades in row-major order.
func (c *Content) Shades() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	shades := make([]uint8, len(c.Sprites))
	for i, s := range c.Sprites {
		shades[i] = s.Shade
	}
	return shades
}

// Destroy releases the content's sprites. Calling it twice is harmless.
func (c *Content) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	for _, s := range c.Sprites {
		if c.pool != nil {
			c.pool.Release(s.Texture)
		}
	}
	c.Sprites = nil
	c.Border = nil
	c.destroyed = true
}

// Destroyed reports whether Destroy has run.
func (c *Content) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
