package api

import (
	"encoding/json"
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/compression"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
)

// Message types exchanged over the observer stream.
const (
	MessagePing           = "ping"
	MessagePong           = "pong"
	MessagePositionUpdate = "position_update"
	MessagePositionAck    = "position_ack"
	MessageHover          = "hover"
	MessageSelect         = "select"
	MessageChunkAttach    = "chunk_attach"
	MessageChunkDetach    = "chunk_detach"
	MessageError          = "error"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// PositionUpdate moves the observer. Coordinates are world tiles.
type PositionUpdate struct {
	X *float64 `json:"x" validate:"required,min=-1e9,max=1e9"`
	Y *float64 `json:"y" validate:"required,min=-1e9,max=1e9"`
}

// PositionAck confirms a position update and names the chunk it falls in.
type PositionAck struct {
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Chunk chunk.Key `json:"chunk"`
}

// HoverUpdate marks an entity as hovered or not.
type HoverUpdate struct {
	EntityID string    `json:"entity_id" validate:"required,max=128"`
	Chunk    chunk.Key `json:"chunk"`
	Hovered  bool      `json:"hovered"`
}

// SelectRequest selects an entity.
type SelectRequest struct {
	EntityID string    `json:"entity_id" validate:"required,max=128"`
	Chunk    chunk.Key `json:"chunk"`
}

// ChunkAttach announces a chunk that became resident.
type ChunkAttach struct {
	Key      string                       `json:"key"`
	ChunkX   int                          `json:"chunk_x"`
	ChunkY   int                          `json:"chunk_y"`
	OriginX  float64                      `json:"origin_x"`
	OriginY  float64                      `json:"origin_y"`
	Size     int                          `json:"size"`
	Source   generator.Source             `json:"source"`
	Tiles    *compression.CompressedTiles `json:"tiles"`
	Border   *generator.Border            `json:"border,omitempty"`
	Entities []database.Entity            `json:"entities"`
	Attached time.Time                    `json:"attached_at"`
}

// ChunkDetach announces a chunk that left the load radius.
type ChunkDetach struct {
	Key    string `json:"key"`
	ChunkX int    `json:"chunk_x"`
	ChunkY int    `json:"chunk_y"`
}

func encodeMessage(msgType, id string, data interface{}) ([]byte, error) {
	msg := WebSocketMessage{Type: msgType, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
