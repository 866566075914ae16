package world

import (
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
)

// Scene is where resident chunks are displayed.
type Scene interface {
	Attach(r *Resident)
	Detach(r *Resident)
}

// NopScene discards attach and detach calls.
type NopScene struct{}

func (NopScene) Attach(*Resident) {}
func (NopScene) Detach(*Resident) {}

// Resident is a chunk that has been generated and attached to the scene.
type Resident struct {
	Key        chunk.Key          `json:"key"`
	Content    *generator.Content `json:"-"`
	Entities   []database.Entity  `json:"entities"`
	AttachedAt time.Time          `json:"attached_at"`
}

// Destroy releases the chunk's content.
func (r *Resident) Destroy() {
	if r.Content != nil {
		r.Content.Destroy()
	}
	r.Entities = nil
}
