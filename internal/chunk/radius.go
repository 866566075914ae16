package chunk

// Radius is a rectangular (Chebyshev) load radius measured in chunks.
type Radius struct {
	X uint `json:"x" yaml:"x"`
	Y uint `json:"y" yaml:"y"`
}

// UniformRadius returns a radius with the same extent on both axes.
func UniformRadius(r uint) Radius {
	return Radius{X: r, Y: r}
}

// Contains reports whether key lies inside the ring centred on center.
func (r Radius) Contains(center, key Key) bool {
	dx, dy := center.Chebyshev(key)
	return dx <= int(r.X) && dy <= int(r.Y)
}

// Area is the number of chunks inside the ring.
func (r Radius) Area() int {
	return (2*int(r.X) + 1) * (2*int(r.Y) + 1)
}

// Ring lists every key in [cx-rx, cx+rx] x [cy-ry, cy+ry], row by row.
func Ring(center Key, r Radius) []Key {
	rx, ry := int(r.X), int(r.Y)
	keys := make([]Key, 0, r.Area())
	for y := center.Y - ry; y <= center.Y+ry; y++ {
		for x := center.X - rx; x <= center.X+rx; x++ {
			keys = append(keys, Key{X: x, Y: y})
		}
	}
	return keys
}
