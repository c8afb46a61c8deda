package util

import (
	"github.com/OneOfOne/xxhash"
)

// 将一个键进行Hash
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}

// HashCode32 folds the 64-bit hash down to the 32 bits the extendible hash
// directory indexes on.
func HashCode32(key []byte) uint32 {
	h := HashCode(key)
	return uint32(h) ^ uint32(h>>32)
}

// CombineHashes mixes two hash values, used when hashing composite keys.
func CombineHashes(l, r uint64) uint64 {
	return l*31 + r
}
