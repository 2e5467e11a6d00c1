package audit

import "sync"

// PreSessionBuffer retains events produced before a session has an
// initialized, locked workspace root (spec §4.2: "events produced before
// session initialization are retained in memory keyed by the incoming
// workspace root"). There is no on-disk log to append to yet, because the
// log's path is itself derived from the workspace root.
type PreSessionBuffer struct {
	mu     sync.Mutex
	byRoot map[string][]Event
}

// NewPreSessionBuffer returns an empty buffer.
func NewPreSessionBuffer() *PreSessionBuffer {
	return &PreSessionBuffer{byRoot: make(map[string][]Event)}
}

// Add appends ev to the in-memory queue for the given candidate workspace
// root, preserving arrival order.
func (b *PreSessionBuffer) Add(root string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byRoot[root] = append(b.byRoot[root], ev)
}

// Flush removes and returns the buffered events for root, in arrival order.
// Call this on successful session initialization, then Append each
// returned event into the now-open Log.
func (b *PreSessionBuffer) Flush(root string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.byRoot[root]
	delete(b.byRoot, root)
	return events
}

// Discard drops the buffered events for root without persisting them,
// called when session initialization for that root fails.
func (b *PreSessionBuffer) Discard(root string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byRoot, root)
}

// FlushInto drains root's buffered events into log in order, stopping at
// the first append failure and returning it.
func (b *PreSessionBuffer) FlushInto(root string, log *Log) error {
	for _, ev := range b.Flush(root) {
		if _, err := log.Append(ev); err != nil {
			return err
		}
	}
	return nil
}
