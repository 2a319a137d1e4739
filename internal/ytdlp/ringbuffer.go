package ytdlp

// DefaultTailSize is how many output lines an attempt keeps for diagnosis
const DefaultTailSize = 120

// ringBuffer keeps the most recent lines; the oldest is evicted first.
// Owned by a single attempt, not safe for concurrent use.
type ringBuffer struct {
	lines []string
	start int
	count int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{lines: make([]string, capacity)}
}

func (r *ringBuffer) add(line string) {
	c := len(r.lines)
	if r.count < c {
		r.lines[(r.start+r.count)%c] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % c
}

// snapshot returns the lines oldest first
func (r *ringBuffer) snapshot() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
