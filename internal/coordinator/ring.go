package coordinator

// ringCapacity bounds each mechanism's log ring; the oldest entry is
// evicted when a full ring takes a new one.
const ringCapacity = 1000

// logRing is a fixed-capacity circular buffer of log lines. Not safe for
// concurrent use; the coordinator serializes access under its own lock.
type logRing struct {
	entries []string
	head    int
	full    bool
}

func newLogRing() *logRing {
	return &logRing{entries: make([]string, 0, ringCapacity)}
}

func (r *logRing) append(line string) {
	if !r.full {
		r.entries = append(r.entries, line)
		if len(r.entries) == ringCapacity {
			r.full = true
		}
		return
	}
	r.entries[r.head] = line
	r.head = (r.head + 1) % ringCapacity
}

// snapshot returns entries oldest-first.
func (r *logRing) snapshot() []string {
	out := make([]string, 0, len(r.entries))
	out = append(out, r.entries[r.head:]...)
	out = append(out, r.entries[:r.head]...)
	return out
}

func (r *logRing) len() int { return len(r.entries) }

func (r *logRing) clear() {
	r.entries = r.entries[:0]
	r.head = 0
	r.full = false
}
