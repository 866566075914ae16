package chunk

import "sort"

// Set is an unordered collection of chunk keys.
type Set map[Key]struct{}

// NewSet builds a set from keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Add(k Key)    { s[k] = struct{}{} }
func (s Set) Remove(k Key) { delete(s, k) }
func (s Set) Len() int     { return len(s) }

// Has reports membership.
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Keys returns the members sorted by (y, x) so callers get stable output.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// SortKeys orders keys by row, then column.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Y != keys[j].Y {
			return keys[i].Y < keys[j].Y
		}
		return keys[i].X < keys[j].X
	})
}

// Diff reports which keys appear only in next (added) and only in previous (removed).
func Diff(previous, next []Key) (added []Key, removed []Key) {
	prevSet := NewSet(previous...)
	nextSet := NewSet(next...)

	for _, k := range next {
		if !prevSet.Has(k) {
			added = append(added, k)
		}
	}
	for _, k := range previous {
		if !nextSet.Has(k) {
			removed = append(removed, k)
		}
	}
	return
}
