package stream

import "niftyscalp/internal/models"

// tickRing is a fixed-capacity FIFO over ticks. Once full, each push evicts
// the oldest entry. Not safe for concurrent use; the router guards it.
type tickRing struct {
	buf   []models.Tick
	start int
	count int
}

func newTickRing(capacity int) *tickRing {
	return &tickRing{buf: make([]models.Tick, capacity)}
}

func (r *tickRing) push(t models.Tick) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = t
		r.count++
		return
	}
	r.buf[r.start] = t
	r.start = (r.start + 1) % len(r.buf)
}

func (r *tickRing) len() int { return r.count }

// snapshot returns the buffered ticks oldest-first.
func (r *tickRing) snapshot() []models.Tick {
	out := make([]models.Tick, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// lastTwo returns the two most recent ticks, oldest of the pair first.
func (r *tickRing) lastTwo() (models.Tick, models.Tick, bool) {
	if r.count < 2 {
		return models.Tick{}, models.Tick{}, false
	}
	prev := r.buf[(r.start+r.count-2)%len(r.buf)]
	last := r.buf[(r.start+r.count-1)%len(r.buf)]
	return prev, last, true
}
