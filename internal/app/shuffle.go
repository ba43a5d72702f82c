package app

import (
	"hash/fnv"
	"math/rand/v2"
)

// permutation returns a permutation of [0, n) that depends only on parts.
// The same parts always give the same order.
func permutation(n int, parts ...string) []int {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	idx := inOrder(n)
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

func inOrder(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
