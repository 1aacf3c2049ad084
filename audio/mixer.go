package audio

import (
	"fmt"
	"math"
	"sync"
)

// DefaultSlots is the number of peers that can be mixed at once.
const DefaultSlots = 64

// maxQueuedFrames bounds per-slot latency; older frames are dropped.
const maxQueuedFrames = 10

// Mixer sums the voice of several peers into one playback stream. Each
// peer plays into its own slot.
type Mixer struct {
	mu           sync.Mutex
	frameSamples int
	queues       [][][]int16
}

// NewMixer creates a mixer with the given number of slots.
func NewMixer(slots, frameSamples int) *Mixer {
	return &Mixer{
		frameSamples: frameSamples,
		queues:       make([][][]int16, slots),
	}
}

// Slots returns the number of slots.
func (m *Mixer) Slots() int {
	return len(m.queues)
}

// FrameSamples returns the size of mixed frames.
func (m *Mixer) FrameSamples() int {
	return m.frameSamples
}

// Play queues pcm on slot. A nil frame marks lost audio and queues
// silence so the stream keeps its timing.
func (m *Mixer) Play(slot int, pcm []int16) error {
	if slot < 0 || slot >= len(m.queues) {
		return fmt.Errorf("mixer slot %d out of range", slot)
	}
	if pcm == nil {
		pcm = make([]int16, m.frameSamples)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.queues[slot], pcm)
	if len(q) > maxQueuedFrames {
		q = q[len(q)-maxQueuedFrames:]
	}
	m.queues[slot] = q
	return nil
}

// Clear drops everything queued on slot.
func (m *Mixer) Clear(slot int) {
	if slot < 0 || slot >= len(m.queues) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[slot] = nil
}

// Mix takes one frame from every slot and returns their saturated sum.
// Slots with nothing queued contribute silence.
func (m *Mixer) Mix() []int16 {
	sum := make([]int32, m.frameSamples)

	m.mu.Lock()
	for slot, q := range m.queues {
		if len(q) == 0 {
			continue
		}
		frame := q[0]
		m.queues[slot] = q[1:]
		for i := 0; i < len(frame) && i < len(sum); i++ {
			sum[i] += int32(frame[i])
		}
	}
	m.mu.Unlock()

	out := make([]int16, m.frameSamples)
	for i, v := range sum {
		switch {
		case v > math.MaxInt16:
			out[i] = math.MaxInt16
		case v < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(v)
		}
	}
	return out
}
