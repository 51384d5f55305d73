package perf

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Options wires a Monitor to its collaborators. Zero values get defaults:
// a 60 Hz TickerFrames, time.Now, the Go heap reader and DefaultThresholds.
type Options struct {
	Frames     FrameScheduler
	Visibility VisibilitySource
	Clock      func() time.Time
	Memory     func() uint64
	Thresholds Thresholds
}

type animationEntry struct {
	startedAt time.Time
	frames    int
}

// Monitor keeps bounded windows of frame, render, interaction and animation
// measurements. Construct one per process (or per test) with New; it is safe
// for concurrent use.
type Monitor struct {
	frames     FrameScheduler
	clock      func() time.Time
	memory     func() uint64
	thresholds Thresholds

	mu              sync.Mutex
	active          bool
	hidden          bool
	resumeOnVisible bool
	destroyed       bool
	generation      uint64 // bumped on every stop; stale frame callbacks compare against it
	cancelFrame     func()
	lastFrame       time.Time
	frameCount      int
	animations      map[string]*animationEntry
	detach          func()

	frameWin       *Window[FrameSample]
	interactionWin *Window[InteractionMetrics]
	renderWin      *Window[RenderSample]
	animationWin   *Window[AnimationSummary]
}

// New builds a Monitor. Monitoring does not start until StartMonitoring.
func New(opts Options) *Monitor {
	m := &Monitor{
		frames:         opts.Frames,
		clock:          opts.Clock,
		memory:         opts.Memory,
		thresholds:     opts.Thresholds.withDefaults(),
		animations:     make(map[string]*animationEntry),
		frameWin:       NewWindow[FrameSample](FrameWindowSize),
		interactionWin: NewWindow[InteractionMetrics](InteractionWindowSize),
		renderWin:      NewWindow[RenderSample](RenderWindowSize),
		animationWin:   NewWindow[AnimationSummary](AnimationWindowSize),
	}
	if m.frames == nil {
		m.frames = NewTickerFrames(60)
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.memory == nil {
		m.memory = heapInUse
	}
	if opts.Visibility != nil {
		m.detach = opts.Visibility.OnVisibilityChange(m.handleVisibility)
	}
	return m
}

// StartMonitoring begins the frame callback chain. Calling it while already
// monitoring is a no-op. While the surface is hidden the start is deferred
// until it becomes visible.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || m.active {
		return
	}
	if m.hidden {
		m.resumeOnVisible = true
		return
	}
	m.startLocked()
}

// StopMonitoring cancels the pending frame callback.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeOnVisible = false
	m.stopLocked()
}

// Monitoring reports whether the frame chain is running.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) startLocked() {
	m.active = true
	m.lastFrame = m.clock()
	m.frameCount = 0
	m.scheduleLocked()
}

func (m *Monitor) stopLocked() {
	if !m.active {
		return
	}
	m.active = false
	m.generation++
	if m.cancelFrame != nil {
		m.cancelFrame()
		m.cancelFrame = nil
	}
}

func (m *Monitor) scheduleLocked() {
	gen := m.generation
	m.cancelFrame = m.frames.RequestFrame(func(now time.Time) {
		m.onFrame(gen, now)
	})
}

func (m *Monitor) onFrame(gen uint64, now time.Time) {
	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		return
	}
	delta := now.Sub(m.lastFrame)
	m.lastFrame = now
	m.frameCount++
	for _, a := range m.animations {
		a.frames++
	}
	sample := m.frameCount%FramesPerSample == 0
	m.scheduleLocked()
	m.mu.Unlock()

	if delta <= 0 {
		return
	}
	var mem uint64
	if sample {
		mem = m.memory()
	}

	// Push under the lock after rechecking, so a Stop or Destroy that ran
	// while memory was being read leaves nothing behind.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed || gen != m.generation {
		return
	}
	if delta >= LongTaskThreshold {
		m.interactionWin.Push(InteractionMetrics{
			Type:           InteractionLongTask,
			StartTime:      now.Add(-delta),
			ResponseTimeMs: millis(delta),
			Success:        false,
		})
	}
	if sample {
		m.frameWin.Push(FrameSample{
			FPS:         1000 / millis(delta),
			FrameTimeMs: millis(delta),
			MemoryBytes: mem,
			Timestamp:   now,
		})
	}
}

func (m *Monitor) handleVisibility(visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.hidden = !visible
	if !visible {
		if m.active {
			m.resumeOnVisible = true
			m.stopLocked()
			log.Printf("perf monitor paused (hidden)")
		}
		return
	}
	if m.resumeOnVisible && !m.active {
		m.resumeOnVisible = false
		m.startLocked()
		log.Printf("perf monitor resumed (visible)")
	}
}

// RecordFrame appends a frame sample directly, bypassing the frame chain.
func (m *Monitor) RecordFrame(s FrameSample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = m.clock()
	}
	m.frameWin.Push(s)
}

// RecordComponentRender notes how long a component took to render.
func (m *Monitor) RecordComponentRender(component string, d time.Duration) {
	m.renderWin.Push(RenderSample{Component: component, DurationMs: millis(d), Timestamp: m.clock()})
}

// RecordInteraction appends to the interaction window (last 100 kept).
func (m *Monitor) RecordInteraction(e InteractionMetrics) {
	if e.StartTime.IsZero() {
		e.StartTime = m.clock()
	}
	m.interactionWin.Push(e)
}

// StartAnimationTracking opens a span for id. Starting an id that is already
// live restarts its span.
func (m *Monitor) StartAnimationTracking(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	m.animations[id] = &animationEntry{startedAt: m.clock()}
}

// EndAnimationTracking closes the span for id. It returns false when id is
// not live, which covers double ends and ids that were never started.
func (m *Monitor) EndAnimationTracking(id string) (AnimationSummary, bool) {
	m.mu.Lock()
	entry, ok := m.animations[id]
	if !ok {
		m.mu.Unlock()
		return AnimationSummary{}, false
	}
	delete(m.animations, id)
	m.mu.Unlock()

	end := m.clock()
	dur := end.Sub(entry.startedAt)
	if dur < 0 {
		dur = 0
	}
	summary := AnimationSummary{
		AnimationID: id,
		StartedAt:   entry.startedAt,
		EndedAt:     end,
		DurationMs:  millis(dur),
		FrameCount:  entry.frames,
	}
	if dur > 0 {
		summary.AverageFPS = float64(entry.frames) / dur.Seconds()
	}
	m.animationWin.Push(summary)
	return summary, true
}

// ClearAnimationTracking drops every live span without producing summaries.
func (m *Monitor) ClearAnimationTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.animations = make(map[string]*animationEntry)
}

// Metrics returns copies of all retained windows.
func (m *Monitor) Metrics() Snapshot {
	m.mu.Lock()
	live := make([]string, 0, len(m.animations))
	for id := range m.animations {
		live = append(live, id)
	}
	active := m.active
	m.mu.Unlock()
	sort.Strings(live)
	return Snapshot{
		Monitoring:       active,
		Frames:           m.frameWin.Items(),
		Interactions:     m.interactionWin.Items(),
		Renders:          m.renderWin.Items(),
		Animations:       m.animationWin.Items(),
		ActiveAnimations: live,
	}
}

// Destroy stops monitoring, detaches the visibility listener and clears all
// retained state. Safe to call more than once.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	m.resumeOnVisible = false
	m.stopLocked()
	detach := m.detach
	m.detach = nil
	m.animations = make(map[string]*animationEntry)
	m.destroyed = true
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
	m.frameWin.Clear()
	m.interactionWin.Clear()
	m.renderWin.Clear()
	m.animationWin.Clear()
}
