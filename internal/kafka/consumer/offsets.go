package consumer

import "sync"

// partitionOffsets tracks the records dispatched from one claim. Records may
// be acknowledged in any order; only a contiguous acknowledged prefix can be
// marked.
type partitionOffsets struct {
	mu      sync.Mutex
	pending []int64
	acked   map[int64]bool
}

func newPartitionOffsets() *partitionOffsets {
	return &partitionOffsets{acked: make(map[int64]bool)}
}

// dispatched registers offset. Offsets arrive in ascending order.
func (p *partitionOffsets) dispatched(offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, offset)
}

// ack records offset and returns the next offset to mark, or -1 while an
// earlier dispatched offset is still outstanding.
func (p *partitionOffsets) ack(offset int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.acked[offset] = true
	next := int64(-1)
	for len(p.pending) > 0 && p.acked[p.pending[0]] {
		delete(p.acked, p.pending[0])
		next = p.pending[0] + 1
		p.pending = p.pending[1:]
	}
	return next
}

// outstanding returns how many dispatched offsets are not yet marked.
func (p *partitionOffsets) outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
