package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
	"github.com/earthring/chunkstream/internal/performance"
	"github.com/earthring/chunkstream/internal/world"
)

// World is the part of the world manager the HTTP surface reads.
type World interface {
	Residents() []chunk.Key
	Resident(key chunk.Key) (*world.Resident, bool)
	Stats() world.Stats
	Meta() generator.Meta
}

// ChunkHandlers serves resident chunk inspection and stats.
type ChunkHandlers struct {
	world    World
	hub      *Hub
	profiler *performance.Profiler
}

// NewChunkHandlers creates a new instance of ChunkHandlers.
func NewChunkHandlers(w World, hub *Hub, profiler *performance.Profiler) *ChunkHandlers {
	return &ChunkHandlers{world: w, hub: hub, profiler: profiler}
}

// ChunkList is the body of GET /api/chunks.
type ChunkList struct {
	Chunks    []chunk.Key `json:"chunks"`
	ChunkSize int         `json:"chunk_size"`
	TileSize  int         `json:"tile_size"`
	Stats     world.Stats `json:"stats"`
}

// ChunkResponse is the body of GET /api/chunks/{cx,cy}.
type ChunkResponse struct {
	Key        chunk.Key         `json:"key"`
	OriginX    float64           `json:"origin_x"`
	OriginY    float64           `json:"origin_y"`
	Size       int               `json:"size"`
	Source     generator.Source  `json:"source"`
	Shades     []int             `json:"shades"`
	Entities   []database.Entity `json:"entities"`
	AttachedAt time.Time         `json:"attached_at"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	World     world.Stats            `json:"world"`
	Observers int                    `json:"observers"`
	Profiler  performance.ReportJSON `json:"profiler"`
}

// Health handles GET /health.
func (h *ChunkHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "chunkstream-server",
	})
}

// ListChunks handles GET /api/chunks.
func (h *ChunkHandlers) ListChunks(w http.ResponseWriter, r *http.Request) {
	meta := h.world.Meta()
	writeJSON(w, http.StatusOK, ChunkList{
		Chunks:    h.world.Residents(),
		ChunkSize: meta.ChunkSize,
		TileSize:  meta.TileSize,
		Stats:     h.world.Stats(),
	})
}

// GetChunk handles GET /api/chunks/{cx,cy}.
func (h *ChunkHandlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	key, err := chunk.ParseKey(r.PathValue("key"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid chunk key (expected: cx,cy)")
		return
	}

	res, ok := h.world.Resident(key)
	if !ok || res.Content == nil {
		respondWithError(w, http.StatusNotFound, "Chunk is not resident")
		return
	}

	shades := res.Content.Shades()
	ints := make([]int, len(shades))
	for i, s := range shades {
		ints[i] = int(s)
	}
	entities := res.Entities
	if entities == nil {
		entities = []database.Entity{}
	}
	writeJSON(w, http.StatusOK, ChunkResponse{
		Key:        key,
		OriginX:    res.Content.OriginX,
		OriginY:    res.Content.OriginY,
		Size:       res.Content.Size,
		Source:     res.Content.Source,
		Shades:     ints,
		Entities:   entities,
		AttachedAt: res.AttachedAt,
	})
}

// Stats handles GET /api/stats.
func (h *ChunkHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{World: h.world.Stats()}
	if h.hub != nil {
		resp.Observers = h.hub.Connections()
	}
	if h.profiler != nil {
		resp.Profiler = h.profiler.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// respondWithError sends an error response in JSON format.
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}
