package world

import (
	"sort"
	"sync"

	"github.com/earthring/chunkstream/internal/chunk"
)

// InteractionState tracks which entities are hovered or selected. State for
// an entity is dropped when its chunk leaves residency.
type InteractionState struct {
	mu       sync.Mutex
	hovered  map[string]chunk.Key
	selected string
	selKey   chunk.Key
}

// NewInteractionState creates empty interaction state.
func NewInteractionState() *InteractionState {
	return &InteractionState{hovered: make(map[string]chunk.Key)}
}

// SetHovered marks or clears hover on an entity in chunk key.
func (s *InteractionState) SetHovered(entityID string, key chunk.Key, hovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hovered {
		s.hovered[entityID] = key
	} else {
		delete(s.hovered, entityID)
	}
}

// IsHovered reports whether entityID is hovered.
func (s *InteractionState) IsHovered(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hovered[entityID]
	return ok
}

// Hovered lists hovered entity IDs in sorted order.
func (s *InteractionState) Hovered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.hovered))
	for id := range s.hovered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select makes entityID the selected entity. An empty ID clears selection.
func (s *InteractionState) Select(entityID string, key chunk.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = entityID
	s.selKey = key
}

// Selected returns the selected entity, if any.
func (s *InteractionState) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// ClearChunk drops hover and selection for entities in key.
func (s *InteractionState) ClearChunk(key chunk.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.hovered {
		if k == key {
			delete(s.hovered, id)
		}
	}
	if s.selected != "" && s.selKey == key {
		s.selected = ""
	}
}
