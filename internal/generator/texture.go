package generator

import (
	"sync"
	"sync/atomic"

	"github.com/earthring/chunkstream/internal/noise"
)

// Texture is a shared grayscale swatch. Sprites of the same shade reference
// the same texture instead of allocating their own.
type Texture struct {
	Shade uint8
	Tint  uint32
	refs  atomic.Int64
}

// Refs is the number of live sprites using the texture.
func (t *Texture) Refs() int64 {
	return t.refs.Load()
}

// TexturePool caches textures per shade. It is owned by a Generator and
// released by Generator.Destroy.
type TexturePool struct {
	mu       sync.Mutex
	textures map[uint8]*Texture
}

// NewTexturePool creates an empty pool.
func NewTexturePool() *TexturePool {
	return &TexturePool{textures: make(map[uint8]*Texture)}
}

// Acquire returns the texture for shade and takes a reference on it.
func (p *TexturePool) Acquire(shade uint8) *Texture {
	p.mu.Lock()
	tex, ok := p.textures[shade]
	if !ok {
		tex = &Texture{Shade: shade, Tint: noise.Tint(shade)}
		p.textures[shade] = tex
	}
	p.mu.Unlock()
	tex.refs.Add(1)
	return tex
}

// Release drops a reference taken by Acquire.
func (p *TexturePool) Release(tex *Texture) {
	if tex != nil {
		tex.refs.Add(-1)
	}
}

// Len is the number of distinct textures created.
func (p *TexturePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.textures)
}

// InUse is the total number of outstanding references.
func (p *TexturePool) InUse() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, tex := range p.textures {
		n += tex.Refs()
	}
	return n
}

// Destroy drops every cached texture.
func (p *TexturePool) Destroy() {
	p.mu.Lock()
	p.textures = make(map[uint8]*Texture)
	p.mu.Unlock()
}
