package perf

import "sync"

// Window is a fixed-capacity, insertion-ordered buffer. When full, each
// push overwrites the oldest entry.
type Window[T any] struct {
	mu       sync.RWMutex
	entries  []T
	head     int // next write index once full
	capacity int
	total    int64
}

// NewWindow creates a window holding at most capacity entries (minimum 1).
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest entry if the window is full.
func (w *Window[T]) Push(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) < w.capacity {
		w.entries = append(w.entries, v)
	} else {
		w.entries[w.head] = v
	}
	w.head = (w.head + 1) % w.capacity
	w.total++
}

// Items returns a copy of the retained entries, oldest first.
func (w *Window[T]) Items() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]T, len(w.entries))
	if len(w.entries) < w.capacity {
		copy(out, w.entries)
		return out
	}
	n := copy(out, w.entries[w.head:])
	copy(out[n:], w.entries[:w.head])
	return out
}

// Filter returns retained entries for which keep returns true, oldest first.
func (w *Window[T]) Filter(keep func(T) bool) []T {
	items := w.Items()
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Last returns the newest entry.
func (w *Window[T]) Last() (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var zero T
	if len(w.entries) == 0 {
		return zero, false
	}
	idx := (w.head - 1 + w.capacity) % w.capacity
	if len(w.entries) < w.capacity {
		idx = len(w.entries) - 1
	}
	return w.entries[idx], true
}

func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

func (w *Window[T]) Cap() int { return w.capacity }

// Total is the number of entries ever pushed, including evicted ones.
func (w *Window[T]) Total() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.total
}

// Clear drops every entry and resets the total.
func (w *Window[T]) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = w.entries[:0]
	w.head = 0
	w.total = 0
}
