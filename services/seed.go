package services

import (
	crand "crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"time"
)

// newSessionSeed draws a seed for unseeded sessions.
func newSessionSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// derivedSeed mixes a world seed with coordinates so that results do not
// depend on the order in which zones are visited.
func derivedSeed(seed int64, parts ...int) int64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(seed))
	_, _ = h.Write(buf[:])
	for _, p := range parts {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(p)))
		_, _ = h.Write(buf[:])
	}
	return int64(h.Sum64())
}

func derivedRand(seed int64, parts ...int) *rand.Rand {
	return rand.New(rand.NewSource(derivedSeed(seed, parts...)))
}
