package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SeedFromString returns a 64-bit seed from an arbitrary string using SHA256.
func SeedFromString(s string) uint64 {
	h := sha256.Sum256([]byte(s))
	return binary.LittleEndian.Uint64(h[:8])
}

// Derive returns a deterministic child seed based on a base seed and a label using HMAC-SHA256.
// Labels should be stable strings such as "progress" or "scene-id".
func Derive(base uint64, label string) uint64 {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, base)
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(label))
	sum := m.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// SessionSeed is the canonical seed of a play session and hands out labelled streams.
type SessionSeed struct {
	Text string
	root uint64
}

// NewSessionSeed creates a deterministic SessionSeed from a textual seed. Empty text is rejected.
func NewSessionSeed(seedText string) (SessionSeed, error) {
	if seedText == "" {
		return SessionSeed{}, fmt.Errorf("seed text must not be empty")
	}
	return SessionSeed{Text: seedText, root: SeedFromString(seedText)}, nil
}

// SeedOrClock uses seed when non-zero and the wall clock otherwise.
func SeedOrClock(seed int64) SessionSeed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s, _ := NewSessionSeed(strconv.FormatInt(seed, 10))
	return s
}

// Stream returns a new deterministic RNG stream derived from the session's root seed.
func (r SessionSeed) Stream(label string) *Stream {
	return newStream(Derive(r.root, label))
}

// SplitMix64 PRNG implementation for deterministic streams.
type SplitMix64 struct{ state uint64 }

func newSplitMix64(seed uint64) *SplitMix64 { return &SplitMix64{state: seed} }

func (s *SplitMix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func (s *SplitMix64) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.next() % uint64(n))
}

func (s *SplitMix64) float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// Stream provides deterministic random numbers for one labelled consumer.
type Stream struct {
	sm *SplitMix64
}

func newStream(seed uint64) *Stream {
	return &Stream{sm: newSplitMix64(seed)}
}

// Intn mirrors math/rand.Intn but is deterministic per stream.
func (s *Stream) Intn(n int) int { return s.sm.intn(n) }

// Float64 returns a float in [0,1).
func (s *Stream) Float64() float64 { return s.sm.float64() }

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewSceneID returns "scene_<unix ms>_<7 base36 chars>", the opaque id used to
// correlate pregeneration with the scene it was requested for.
func NewSceneID(now time.Time, s *Stream) string {
	var b strings.Builder
	b.WriteString("scene_")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for n := 0; n < 7; n++ {
		b.WriteByte(base36[s.Intn(len(base36))])
	}
	return b.String()
}
