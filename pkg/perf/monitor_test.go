package perf

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestStartMonitoringIsReentrant(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	h.mon.StartMonitoring()
	if got := h.frames.live(); got != 1 {
		t.Fatalf("pending frame callbacks = %d, want 1", got)
	}
	if !h.mon.Monitoring() {
		t.Fatal("expected monitoring")
	}
}

func TestFrameChainSamplesEverySixtiethFrame(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	for i := 0; i < 2*FramesPerSample+10; i++ {
		h.step(16 * time.Millisecond)
	}
	frames := h.mon.Metrics().Frames
	if len(frames) != 2 {
		t.Fatalf("frame samples = %d, want 2", len(frames))
	}
	if math.Abs(frames[0].FPS-62.5) > 0.01 {
		t.Fatalf("fps = %v, want 62.5", frames[0].FPS)
	}
	if frames[0].FrameTimeMs != 16 {
		t.Fatalf("frame time = %v, want 16", frames[0].FrameTimeMs)
	}
	if frames[0].MemoryBytes != 64<<20 {
		t.Fatalf("memory = %d", frames[0].MemoryBytes)
	}
}

func TestStopMonitoringCancelsPendingFrame(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	h.mon.StopMonitoring()
	if h.mon.Monitoring() {
		t.Fatal("still monitoring after stop")
	}
	if got := h.frames.live(); got != 0 {
		t.Fatalf("live callbacks after stop = %d", got)
	}
	// A callback that fires despite cancellation must not restart the chain.
	h.clock.Advance(16 * time.Millisecond)
	h.frames.fire(h.clock.Now(), true)
	if got := h.frames.live(); got != 0 {
		t.Fatalf("late callback rescheduled; live = %d", got)
	}
}

func TestLongFrameRecordedAsFailedInteraction(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	h.step(16 * time.Millisecond)
	h.step(80 * time.Millisecond)
	got := h.mon.Metrics().Interactions
	if len(got) != 1 {
		t.Fatalf("interactions = %d, want 1", len(got))
	}
	if got[0].Type != InteractionLongTask || got[0].Success || got[0].ResponseTimeMs != 80 {
		t.Fatalf("unexpected long task record %+v", got[0])
	}
}

func TestEndUnknownAnimationIsSafe(t *testing.T) {
	h := newHarness()
	h.mon.StartAnimationTracking("live")
	if _, ok := h.mon.EndAnimationTracking("never-started"); ok {
		t.Fatal("unknown id reported as ended")
	}
	if live := h.mon.Metrics().ActiveAnimations; len(live) != 1 || live[0] != "live" {
		t.Fatalf("live map changed: %v", live)
	}
}

func TestAnimationSummary(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	h.mon.StartAnimationTracking("x")
	for i := 0; i < 30; i++ {
		h.step(20 * time.Millisecond)
	}
	s, ok := h.mon.EndAnimationTracking("x")
	if !ok {
		t.Fatal("expected summary")
	}
	if s.AnimationID != "x" {
		t.Fatalf("id = %q", s.AnimationID)
	}
	if s.FrameCount != 30 || s.DurationMs != 600 {
		t.Fatalf("frames=%d duration=%v", s.FrameCount, s.DurationMs)
	}
	if math.Abs(s.AverageFPS-50) > 0.01 {
		t.Fatalf("avg fps = %v, want 50", s.AverageFPS)
	}
	if _, ok := h.mon.EndAnimationTracking("x"); ok {
		t.Fatal("double end returned a summary")
	}
	if got := h.mon.Metrics().Animations; len(got) != 1 {
		t.Fatalf("completed animations = %d", len(got))
	}
}

func TestAnimationWithoutFramesHasZeroFPS(t *testing.T) {
	h := newHarness()
	h.mon.StartAnimationTracking("idle")
	s, ok := h.mon.EndAnimationTracking("idle")
	if !ok || s.AverageFPS != 0 || s.FrameCount != 0 {
		t.Fatalf("summary = %+v ok=%v", s, ok)
	}
}

func TestClearAnimationTracking(t *testing.T) {
	h := newHarness()
	h.mon.StartAnimationTracking("a")
	h.mon.StartAnimationTracking("b")
	h.mon.ClearAnimationTracking()
	if live := h.mon.Metrics().ActiveAnimations; len(live) != 0 {
		t.Fatalf("live = %v", live)
	}
}

func TestVisibilityPausesAndResumes(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	for i := 0; i < 5; i++ {
		h.vis.set(false)
		if h.mon.Monitoring() || h.frames.live() != 0 {
			t.Fatalf("hidden: monitoring=%v live=%d", h.mon.Monitoring(), h.frames.live())
		}
		h.vis.set(true)
		if !h.mon.Monitoring() {
			t.Fatal("visible: monitoring not resumed")
		}
		if got := h.frames.live(); got != 1 {
			t.Fatalf("visible: live callbacks = %d, want 1", got)
		}
	}
	h.vis.set(true)
	if got := h.frames.live(); got != 1 {
		t.Fatalf("repeat visible leaked chains: %d", got)
	}
}

func TestVisibilityDoesNotStartStoppedMonitor(t *testing.T) {
	h := newHarness()
	h.vis.set(false)
	h.vis.set(true)
	if h.mon.Monitoring() {
		t.Fatal("monitor started by visibility without StartMonitoring")
	}
	h.mon.StartMonitoring()
	h.mon.StopMonitoring()
	h.vis.set(false)
	h.vis.set(true)
	if h.mon.Monitoring() {
		t.Fatal("monitor resumed after explicit stop")
	}
}

func TestStartWhileHiddenWaitsForVisible(t *testing.T) {
	h := newHarness()
	h.vis.set(false)
	h.mon.StartMonitoring()
	if h.mon.Monitoring() {
		t.Fatal("started while hidden")
	}
	h.vis.set(true)
	if !h.mon.Monitoring() || h.frames.live() != 1 {
		t.Fatalf("monitoring=%v live=%d", h.mon.Monitoring(), h.frames.live())
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	h := newHarness()
	h.mon.StartMonitoring()
	h.mon.RecordFrame(FrameSample{FPS: 60})
	h.mon.RecordInteraction(InteractionMetrics{Type: "tap"})
	h.mon.RecordComponentRender("OrderList", 3*time.Millisecond)
	h.mon.StartAnimationTracking("leak")

	h.mon.Destroy()
	h.mon.Destroy()

	snap := h.mon.Metrics()
	if snap.Monitoring || len(snap.Frames)+len(snap.Interactions)+len(snap.Renders)+len(snap.Animations)+len(snap.ActiveAnimations) != 0 {
		t.Fatalf("state not cleared: %+v", snap)
	}
	if h.vis.listeners() != 0 || h.vis.detaches != 1 {
		t.Fatalf("listeners=%d detaches=%d", h.vis.listeners(), h.vis.detaches)
	}
	if h.frames.live() != 0 {
		t.Fatal("frame chain survived destroy")
	}
	h.mon.StartMonitoring()
	if h.mon.Monitoring() {
		t.Fatal("destroyed monitor restarted")
	}
}

func TestMeasurePreservesResultAndError(t *testing.T) {
	h := newHarness()
	v, err := Measure(h.mon, "lookup", func() (int, error) {
		h.clock.Advance(40 * time.Millisecond)
		return 42, nil
	})
	if v != 42 || err != nil {
		t.Fatalf("got %d, %v", v, err)
	}
	sentinel := errors.New("boom")
	err = h.mon.MeasureInteraction("submit", func() error {
		h.clock.Advance(120 * time.Millisecond)
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("error replaced: %v", err)
	}
	got := h.mon.Metrics().Interactions
	if len(got) != 2 {
		t.Fatalf("interactions = %d", len(got))
	}
	if !got[0].Success || got[0].ResponseTimeMs != 40 || got[0].Type != "lookup" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Success || got[1].ResponseTimeMs != 120 {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestMeasureRecordsPanicAndRepanics(t *testing.T) {
	h := newHarness()
	defer func() {
		r := recover()
		if r != "kaboom" {
			t.Fatalf("recovered %v", r)
		}
		got := h.mon.Metrics().Interactions
		if len(got) != 1 || got[0].Success {
			t.Fatalf("interactions = %+v", got)
		}
	}()
	_ = h.mon.MeasureInteraction("explode", func() error { panic("kaboom") })
}

func TestMeasureNilMonitor(t *testing.T) {
	v, err := Measure[string](nil, "noop", func() (string, error) { return "ok", nil })
	if v != "ok" || err != nil {
		t.Fatalf("got %q %v", v, err)
	}
}

func TestAverageMetricsWindow(t *testing.T) {
	h := newHarness()
	now := h.clock.Now()
	h.mon.RecordFrame(FrameSample{FPS: 20, FrameTimeMs: 50, MemoryBytes: 300, Timestamp: now.Add(-time.Minute)})
	h.mon.RecordFrame(FrameSample{FPS: 60, FrameTimeMs: 16, MemoryBytes: 100, Timestamp: now.Add(-5 * time.Second)})
	h.mon.RecordInteraction(InteractionMetrics{ResponseTimeMs: 300, StartTime: now.Add(-time.Minute)})
	h.mon.RecordInteraction(InteractionMetrics{ResponseTimeMs: 10, StartTime: now.Add(-time.Second)})

	recent := h.mon.AverageMetrics(30 * time.Second)
	if recent.FPS != 60 || recent.FrameTimeMs != 16 || recent.MemoryBytes != 100 || recent.InteractionLatencyMs != 10 {
		t.Fatalf("recent = %+v", recent)
	}
	all := h.mon.AverageMetrics(0)
	if all.FPS != 40 || all.FrameTimeMs != 33 || all.MemoryBytes != 200 || all.InteractionLatencyMs != 155 {
		t.Fatalf("all = %+v", all)
	}
	if all.FrameSamples != 2 || all.InteractionSamples != 2 {
		t.Fatalf("counts = %+v", all)
	}
}

func TestAverageMetricsEmpty(t *testing.T) {
	h := newHarness()
	if got := h.mon.AverageMetrics(0); got != (Averages{}) {
		t.Fatalf("empty averages = %+v", got)
	}
}

func TestOptimizationSuggestions(t *testing.T) {
	h := newHarness()
	if got := h.mon.OptimizationSuggestions(); len(got) != 0 {
		t.Fatalf("suggestions without samples: %v", got)
	}
	now := h.clock.Now()
	h.mon.RecordFrame(FrameSample{FPS: 22, FrameTimeMs: 45, MemoryBytes: 180 * 1000 * 1000, Timestamp: now})
	h.mon.RecordInteraction(InteractionMetrics{Type: "click", ResponseTimeMs: 250, StartTime: now})

	got := h.mon.OptimizationSuggestions()
	if len(got) != 4 {
		t.Fatalf("suggestions = %d: %v", len(got), got)
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{"Low frame rate", "Slow frames", "High memory usage (180 MB", "Slow interactions"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in %v", want, got)
		}
	}
}

func TestOptimizationSuggestionsIgnoreOldSamples(t *testing.T) {
	h := newHarness()
	h.mon.RecordFrame(FrameSample{FPS: 10, FrameTimeMs: 100, Timestamp: h.clock.Now().Add(-time.Minute)})
	h.mon.RecordFrame(FrameSample{FPS: 60, FrameTimeMs: 16, Timestamp: h.clock.Now()})
	if got := h.mon.OptimizationSuggestions(); len(got) != 0 {
		t.Fatalf("suggestions = %v", got)
	}
}

func TestCustomThresholds(t *testing.T) {
	clock := newFakeClock()
	m := New(Options{Frames: &fakeFrames{}, Clock: clock.Now, Thresholds: Thresholds{MinFPS: 55}})
	m.RecordFrame(FrameSample{FPS: 50, FrameTimeMs: 20, Timestamp: clock.Now()})
	got := m.OptimizationSuggestions()
	if len(got) != 1 || !strings.Contains(got[0], "target 55") {
		t.Fatalf("suggestions = %v", got)
	}
}

func TestDestroyDuringSlowMemoryReadLeavesNoSample(t *testing.T) {
	clock := newFakeClock()
	frames := &fakeFrames{}
	entered := make(chan struct{})
	release := make(chan struct{})
	mon := New(Options{
		Frames: frames,
		Clock:  clock.Now,
		Memory: func() uint64 {
			close(entered)
			<-release
			return 1 << 20
		},
	})
	mon.StartMonitoring()
	for i := 0; i < FramesPerSample-1; i++ {
		frames.fire(clock.Advance(16*time.Millisecond), false)
	}

	done := make(chan struct{})
	go func() {
		// 60th frame, also long enough to count as a long task
		frames.fire(clock.Advance(80*time.Millisecond), false)
		close(done)
	}()
	<-entered
	mon.Destroy()
	close(release)
	<-done

	snap := mon.Metrics()
	if len(snap.Frames) != 0 || len(snap.Interactions) != 0 || snap.Monitoring {
		t.Fatalf("after Destroy: frames=%d interactions=%d monitoring=%v",
			len(snap.Frames), len(snap.Interactions), snap.Monitoring)
	}
}
