package api

import (
	"fmt"
	"log"
	"sync"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/compression"
	"github.com/earthring/chunkstream/internal/world"
)

const sendBuffer = 256

// Hub manages all active WebSocket connections. It is the world's scene:
// every attach and detach is broadcast, and new connections receive the
// chunks currently attached.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]bool
	attached    map[chunk.Key][]byte
	codec       compression.Codec
	closed      bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithTileCodec sets the compression used for chunk_attach tile payloads.
// The default is gzip.
func WithTileCodec(codec compression.Codec) HubOption {
	return func(h *Hub) {
		h.codec = codec
	}
}

// NewHub creates a new WebSocket hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		connections: make(map[*Connection]bool),
		attached:    make(map[chunk.Key][]byte),
		codec:       compression.CodecGzip,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ world.Scene = (*Hub)(nil)

// Attach broadcasts a chunk_attach message for r.
func (h *Hub) Attach(r *world.Resident) {
	msg, err := attachMessage(h.codec, r)
	if err != nil {
		log.Printf("[API] failed to encode chunk %s: %v", r.Key, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[r.Key] = msg
	h.broadcastLocked(msg)
}

// Detach broadcasts a chunk_detach message for r.
func (h *Hub) Detach(r *world.Resident) {
	msg, err := encodeMessage(MessageChunkDetach, "", ChunkDetach{
		Key:    r.Key.String(),
		ChunkX: r.Key.X,
		ChunkY: r.Key.Y,
	})
	if err != nil {
		log.Printf("[API] failed to encode detach for %s: %v", r.Key, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.attached, r.Key)
	h.broadcastLocked(msg)
}

func attachMessage(codec compression.Codec, r *world.Resident) ([]byte, error) {
	content := r.Content
	if content == nil {
		return nil, fmt.Errorf("resident has no content")
	}
	tiles, err := compression.CompressAndFormatTilesWith(codec, content)
	if err != nil {
		return nil, err
	}
	return encodeMessage(MessageChunkAttach, "", ChunkAttach{
		Key:      r.Key.String(),
		ChunkX:   r.Key.X,
		ChunkY:   r.Key.Y,
		OriginX:  content.OriginX,
		OriginY:  content.OriginY,
		Size:     content.Size,
		Source:   content.Source,
		Tiles:    tiles,
		Border:   content.Border,
		Entities: r.Entities,
		Attached: r.AttachedAt,
	})
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(message)
}

func (h *Hub) broadcastLocked(message []byte) {
	for conn := range h.connections {
		select {
		case conn.send <- message:
		default:
			log.Printf("[API] dropping slow observer %s", conn.observerID)
			close(conn.send)
			delete(h.connections, conn)
		}
	}
}

// register adds conn and queues the currently attached chunks on it, row by
// row. It reports false once the hub is closed.
func (h *Hub) register(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	keys := make([]chunk.Key, 0, len(h.attached))
	for k := range h.attached {
		keys = append(keys, k)
	}
	chunk.SortKeys(keys)

	conn.send = make(chan []byte, sendBuffer+len(keys))
	for _, k := range keys {
		conn.send <- h.attached[k]
	}
	h.connections[conn] = true
	log.Printf("[API] observer %s connected (version=%s, chunks=%d)", conn.observerID, conn.version, len(keys))
	return true
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		close(conn.send)
		log.Printf("[API] observer %s disconnected", conn.observerID)
	}
}

// send queues a message for one connection without blocking.
func (h *Hub) send(conn *Connection, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connections[conn] {
		return false
	}
	select {
	case conn.send <- message:
		return true
	default:
		return false
	}
}

// Connections returns the number of connected observers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// AttachedChunks returns the keys the hub currently considers attached.
func (h *Hub) AttachedChunks() []chunk.Key {
	h.mu.RLock()
	keys := make([]chunk.Key, 0, len(h.attached))
	for k := range h.attached {
		keys = append(keys, k)
	}
	h.mu.RUnlock()
	chunk.SortKeys(keys)
	return keys
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.connections {
		close(conn.send)
		delete(h.connections, conn)
	}
}
