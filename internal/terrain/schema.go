package terrain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ResultSchema describes a well-formed generate_background reply.
const ResultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["chunk_x", "chunk_y", "tiles"],
  "properties": {
    "chunk_x": {"type": "integer"},
    "chunk_y": {"type": "integer"},
    "tiles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["x", "y", "shade", "tint"],
        "properties": {
          "x": {"type": "number"},
          "y": {"type": "number"},
          "shade": {"type": "integer", "minimum": 0, "maximum": 255},
          "tint": {"type": "integer", "minimum": 0, "maximum": 16777215}
        }
      }
    }
  }
}`

var resultSchema = jsonschema.MustCompileString("background_result.json", ResultSchema)

// ValidateResult decodes a worker reply and rejects anything malformed: schema
// violations, a reply for a different chunk, or a tile count that does not
// match the request.
func ValidateResult(raw json.RawMessage, req BackgroundRequest) (BackgroundResult, error) {
	if len(raw) == 0 {
		return BackgroundResult{}, fmt.Errorf("empty response")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return BackgroundResult{}, fmt.Errorf("decode response: %w", err)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return BackgroundResult{}, fmt.Errorf("response does not match schema: %w", err)
	}

	var result BackgroundResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return BackgroundResult{}, fmt.Errorf("decode result: %w", err)
	}
	if result.ChunkX != req.ChunkX || result.ChunkY != req.ChunkY {
		return BackgroundResult{}, fmt.Errorf("response for chunk %d,%d, expected %d,%d",
			result.ChunkX, result.ChunkY, req.ChunkX, req.ChunkY)
	}
	if want := req.ChunkSize * req.ChunkSize; len(result.Tiles) != want {
		return BackgroundResult{}, fmt.Errorf("response has %d tiles, expected %d", len(result.Tiles), want)
	}
	return result, nil
}
