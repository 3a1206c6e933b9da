package codec

import "sync"

// Dedup tracks packet self-MD5 values seen across an entire parsing
// session, guarded by a mutex so that sibling volumes can be parsed
// concurrently (spec §4.2, §5 "Packet parsing of sibling volumes").
type Dedup struct {
	mu   sync.Mutex
	seen map[Hash]struct{}
}

// NewDedup returns an empty, ready-to-use [Dedup].
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[Hash]struct{})}
}

// SeenOrMark reports whether h has already been recorded; if not, it marks
// h as seen and returns false.
func (d *Dedup) SeenOrMark(h Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[h]; ok {
		return true
	}

	d.seen[h] = struct{}{}

	return false
}
