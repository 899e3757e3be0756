package phrases

import (
	"math/rand/v2"
	"sync"
)

// Picker chooses phrases uniformly at random.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker creates a picker over src. A nil source is seeded randomly.
func NewPicker(src rand.Source) *Picker {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Picker{rng: rand.New(src)}
}

// Pick returns one of candidates, or "" when there are none.
func (p *Picker) Pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return candidates[p.rng.IntN(len(candidates))]
}
