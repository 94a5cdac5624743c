package dictionary

import (
	"sync"
	"sync/atomic"
)

// Store holds the current Snapshot. Readers never block; writers are serialized and
// publish a freshly built Snapshot with a higher version.
type Store struct {
	mu      sync.Mutex
	base    []Entry
	current atomic.Pointer[Snapshot]
}

// NewStore builds the first snapshot (version 1) from base entries and custom words.
func NewStore(base []Entry, custom []string) *Store {
	st := &Store{base: base}
	st.current.Store(Build(1, base, custom))
	return st
}

// Current returns the snapshot in effect. Callers should read it once per request.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Add merges words into the custom vocabulary and returns the new snapshot and the number
// of words that were not already custom words.
func (st *Store) Add(words []string) (*Snapshot, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur := st.current.Load()
	existing := make(map[string]bool, len(cur.custom))
	for _, w := range cur.custom {
		existing[w] = true
	}
	custom := append([]string(nil), cur.custom...)
	added := 0
	for _, w := range words {
		w = normalize(w)
		if w == "" || existing[w] {
			continue
		}
		existing[w] = true
		custom = append(custom, w)
		added++
	}
	if added == 0 {
		return cur, 0
	}
	return st.swapLocked(custom), added
}

// Remove deletes words from the custom vocabulary. Base words are not affected.
// It returns the new snapshot and the number of words removed.
func (st *Store) Remove(words []string) (*Snapshot, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	cur := st.current.Load()
	drop := make(map[string]bool, len(words))
	for _, w := range words {
		drop[normalize(w)] = true
	}
	custom := make([]string, 0, len(cur.custom))
	for _, w := range cur.custom {
		if !drop[w] {
			custom = append(custom, w)
		}
	}
	removed := len(cur.custom) - len(custom)
	if removed == 0 {
		return cur, 0
	}
	return st.swapLocked(custom), removed
}

// Replace sets the custom vocabulary to exactly words.
func (st *Store) Replace(words []string) *Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.swapLocked(words)
}

func (st *Store) swapLocked(custom []string) *Snapshot {
	next := Build(st.current.Load().version+1, st.base, custom)
	st.current.Store(next)
	return next
}
