package streaming

import (
	"log"
	"sync"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/position"
)

// Tracker exposes the caller's chunk state to the load manager. The manager
// keeps no chunk data of its own.
type Tracker interface {
	IsChunkLoaded(key chunk.Key) bool
	IsChunkQueued(key chunk.Key) bool
	// ActiveKeys returns every resident or queued key.
	ActiveKeys() []chunk.Key
	OnChunkNeeded(key chunk.Key)
	OnChunkUnneeded(key chunk.Key)
}

// Delta describes the events raised by one position update.
type Delta struct {
	Center   chunk.Key   `json:"center"`
	Moved    bool        `json:"moved"`
	Needed   []chunk.Key `json:"needed,omitempty"`
	Unneeded []chunk.Key `json:"unneeded,omitempty"`
}

// LoadManager turns a stream of positions into need and unneed events.
type LoadManager struct {
	chunkSize int
	radius    chunk.Radius
	tracker   Tracker

	mu      sync.Mutex
	last    chunk.Key
	hasLast bool
	debug   bool
}

// NewLoadManager builds a load manager. Positions are measured in tiles, so
// chunk (cx, cy) covers [cx*chunkSize, (cx+1)*chunkSize) on each axis.
func NewLoadManager(chunkSize int, radius chunk.Radius, tracker Tracker) *LoadManager {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &LoadManager{chunkSize: chunkSize, radius: radius, tracker: tracker}
}

// SetDebug enables per-update logging.
func (m *LoadManager) SetDebug(debug bool) {
	m.mu.Lock()
	m.debug = debug
	m.mu.Unlock()
}

// Radius returns the load radius.
func (m *LoadManager) Radius() chunk.Radius {
	return m.radius
}

// ChunkFor returns the chunk containing pos.
func (m *LoadManager) ChunkFor(pos position.Position) chunk.Key {
	return chunk.CoordForPosition(pos.X, pos.Y, m.chunkSize)
}

// UpdatePosition raises need events for every chunk in the window around pos
// that is neither loaded nor queued, then unneed events for every active
// chunk outside it. Nothing happens while pos stays in the same chunk.
func (m *LoadManager) UpdatePosition(pos position.Position) Delta {
	center := m.ChunkFor(pos)

	m.mu.Lock()
	if m.hasLast && m.last == center {
		m.mu.Unlock()
		return Delta{Center: center}
	}
	m.last = center
	m.hasLast = true
	debug := m.debug
	m.mu.Unlock()

	delta := Delta{Center: center, Moved: true}
	for _, key := range ComputeChunkWindow(center, m.radius) {
		if m.tracker.IsChunkLoaded(key) || m.tracker.IsChunkQueued(key) {
			continue
		}
		m.tracker.OnChunkNeeded(key)
		delta.Needed = append(delta.Needed, key)
	}

	active := m.tracker.ActiveKeys()
	chunk.SortKeys(active)
	for _, key := range active {
		if m.radius.Contains(center, key) {
			continue
		}
		m.tracker.OnChunkUnneeded(key)
		delta.Unneeded = append(delta.Unneeded, key)
	}

	if debug {
		log.Printf("[Stream] UpdatePosition: pos=(%.2f, %.2f) center=%s needed=%d unneeded=%d",
			pos.X, pos.Y, center, len(delta.Needed), len(delta.Unneeded))
	}
	return delta
}

// LastObserved returns the chunk of the most recent position, if any.
func (m *LoadManager) LastObserved() (chunk.Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// Reset forgets the last observed chunk so the next update is evaluated in
// full.
func (m *LoadManager) Reset() {
	m.mu.Lock()
	m.hasLast = false
	m.last = chunk.Key{}
	m.mu.Unlock()
}

// ComputeChunkWindow returns every chunk within radius of center, row by row.
func ComputeChunkWindow(center chunk.Key, radius chunk.Radius) []chunk.Key {
	return chunk.Ring(center, radius)
}

// DiffWindows reports which keys enter and leave when the window moves from
// one center to another.
func DiffWindows(from, to chunk.Key, radius chunk.Radius) (added, removed []chunk.Key) {
	return chunk.Diff(ComputeChunkWindow(from, radius), ComputeChunkWindow(to, radius))
}
