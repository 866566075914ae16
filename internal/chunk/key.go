package chunk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key identifies a chunk by its integer grid coordinates.
// Keys are comparable and are used directly as map keys.
type Key struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NewKey builds a key from chunk coordinates.
func NewKey(cx, cy int) Key {
	return Key{X: cx, Y: cy}
}

// String returns the canonical "cx,cy" form.
func (k Key) String() string {
	return strconv.Itoa(k.X) + "," + strconv.Itoa(k.Y)
}

// ParseKey parses the canonical "cx,cy" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Key{}, fmt.Errorf("invalid chunk key %q: expected \"cx,cy\"", s)
	}
	cx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Key{}, fmt.Errorf("invalid chunk key %q: bad x: %w", s, err)
	}
	cy, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Key{}, fmt.Errorf("invalid chunk key %q: bad y: %w", s, err)
	}
	return Key{X: cx, Y: cy}, nil
}

// MarshalText implements encoding.TextMarshaler so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Chebyshev returns the absolute per-axis distance between two keys.
func (k Key) Chebyshev(other Key) (dx, dy int) {
	return abs(k.X - other.X), abs(k.Y - other.Y)
}

// CoordForPosition maps a position measured in tiles to the chunk containing it.
// Negative positions floor toward negative infinity, so -0.5 lands in chunk -1.
func CoordForPosition(x, y float64, chunkSize int) Key {
	size := float64(chunkSize)
	return Key{
		X: int(math.Floor(x / size)),
		Y: int(math.Floor(y / size)),
	}
}

// FloorDiv divides a by b rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
