package perf

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type fakeFrame struct {
	cb        func(time.Time)
	cancelled bool
}

// fakeFrames queues frame callbacks until the test fires them.
type fakeFrames struct {
	mu      sync.Mutex
	pending []*fakeFrame
}

func (f *fakeFrames) RequestFrame(cb func(time.Time)) func() {
	fr := &fakeFrame{cb: cb}
	f.mu.Lock()
	f.pending = append(f.pending, fr)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		fr.cancelled = true
		f.mu.Unlock()
	}
}

// fire delivers every queued callback. Cancelled ones are delivered only when
// includeCancelled is set, to simulate a callback racing its cancellation.
func (f *fakeFrames) fire(now time.Time, includeCancelled bool) int {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()
	n := 0
	for _, fr := range batch {
		f.mu.Lock()
		cancelled := fr.cancelled
		f.mu.Unlock()
		if cancelled && !includeCancelled {
			continue
		}
		fr.cb(now)
		n++
	}
	return n
}

func (f *fakeFrames) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.pending {
		if !fr.cancelled {
			n++
		}
	}
	return n
}

type fakeVisibility struct {
	mu       sync.Mutex
	fns      map[int]func(bool)
	next     int
	detaches int
}

func (v *fakeVisibility) OnVisibilityChange(fn func(bool)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fns == nil {
		v.fns = map[int]func(bool){}
	}
	id := v.next
	v.next++
	v.fns[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.fns, id)
		v.detaches++
	}
}

func (v *fakeVisibility) set(visible bool) {
	v.mu.Lock()
	fns := make([]func(bool), 0, len(v.fns))
	for _, fn := range v.fns {
		fns = append(fns, fn)
	}
	v.mu.Unlock()
	for _, fn := range fns {
		fn(visible)
	}
}

func (v *fakeVisibility) listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.fns)
}

type harness struct {
	clock  *fakeClock
	frames *fakeFrames
	vis    *fakeVisibility
	mon    *Monitor
}

func newHarness() *harness {
	h := &harness{clock: newFakeClock(), frames: &fakeFrames{}, vis: &fakeVisibility{}}
	h.mon = New(Options{
		Frames:     h.frames,
		Visibility: h.vis,
		Clock:      h.clock.Now,
		Memory:     func() uint64 { return 64 << 20 },
	})
	return h
}

// step advances the clock by d and fires the pending frame.
func (h *harness) step(d time.Duration) {
	now := h.clock.Advance(d)
	h.frames.fire(now, false)
}
