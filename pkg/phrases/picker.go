package phrases

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Picker chooses one of n alternatives. Implementations must be safe for
// concurrent use.
type Picker interface {
	Pick(n int) int
}

// SeededPicker picks uniformly using a PCG source. Two pickers built from
// the same seed produce the same sequence.
type SeededPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededPicker creates a picker from seed. A zero seed is replaced by
// the current time.
func NewSeededPicker(seed uint64) *SeededPicker {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SeededPicker{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

func (p *SeededPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

// FirstPicker always picks the first alternative.
type FirstPicker struct{}

func (FirstPicker) Pick(int) int { return 0 }
