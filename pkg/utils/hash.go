package utils

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// HashVector returns a deterministic unit vector for text. Each lower-cased word is hashed into
// one of dims buckets, so texts sharing words point in similar directions. Texts without words
// map to the zero vector.
func HashVector(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 384
	}
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		vec[sum%uint32(dims)] += 1
		// secondary bucket, signed by the high bit
		if sum&(1<<31) != 0 {
			vec[(sum>>8)%uint32(dims)] -= 0.5
		} else {
			vec[(sum>>8)%uint32(dims)] += 0.5
		}
	}
	NormalizeL2(vec)
	return vec
}
