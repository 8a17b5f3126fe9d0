package core

import (
	"crypto/rand"
	"math/big"
)

// randomInt returns a uniform random value in [0, max). Uses crypto/rand so
// shaping and header selection are not reproducible from a PRNG seed.
func randomInt(max int) int {
	if max <= 0 {
		return 0
	}
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64())
}

// randomIntRange returns a uniform random value in [min, max].
func randomIntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + randomInt(max-min+1)
}

func stringExists(s string, sa []string) bool {
	for _, k := range sa {
		if s == k {
			return true
		}
	}
	return false
}
