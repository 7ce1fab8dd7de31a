package subscription

import (
	"encoding/binary"
	"math/rand"
	"sync"
)

// EventIDGenerator produces opaque event identifiers: best-effort unique,
// not collision-guaranteed, not cryptographically unpredictable. One
// instance is shared by a SubscriptionService across all subscriptions so
// every id in a server process comes from one seeded stream, without any
// ambient global state.
type EventIDGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEventIDGenerator seeds a generator explicitly; callers typically pass
// time.Now().UnixNano() at service construction.
func NewEventIDGenerator(seed int64) *EventIDGenerator {
	return &EventIDGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Generate returns 8 machine-native bytes, freshly drawn on every call.
func (g *EventIDGenerator) Generate() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := make([]byte, 8)
	binary.LittleEndian.PutUint64(id, g.rng.Uint64())
	return id
}
