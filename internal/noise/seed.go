package noise

import (
	"fmt"
	"hash/fnv"
)

// FoldSeed folds a string seed into an integer using 64-bit FNV-1a over its
// UTF-8 bytes. The algorithm is fixed so independent workers seeded with the
// same string always build the same field.
func FoldSeed(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

// ResolveSeed converts a seed value (string or any integer kind) to the int64
// used to build the field. Strings are always hashed, even numeric ones.
func ResolveSeed(v any) (int64, error) {
	switch s := v.(type) {
	case string:
		return FoldSeed(s), nil
	case int:
		return int64(s), nil
	case int8:
		return int64(s), nil
	case int16:
		return int64(s), nil
	case int32:
		return int64(s), nil
	case int64:
		return s, nil
	case uint:
		return int64(s), nil
	case uint8:
		return int64(s), nil
	case uint16:
		return int64(s), nil
	case uint32:
		return int64(s), nil
	case uint64:
		return int64(s), nil
	case nil:
		return 0, fmt.Errorf("seed is nil")
	default:
		return 0, fmt.Errorf("unsupported seed type %T", v)
	}
}
