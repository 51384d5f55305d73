package perf

import (
	"runtime"
	"sync"
	"time"
)

// FrameScheduler delivers a single callback on the next frame. The returned
// cancel func prevents a not-yet-delivered callback from running.
type FrameScheduler interface {
	RequestFrame(cb func(now time.Time)) (cancel func())
}

// VisibilitySource notifies when the monitored surface becomes visible or
// hidden. The returned func detaches the listener.
type VisibilitySource interface {
	OnVisibilityChange(fn func(visible bool)) (detach func())
}

// TickerFrames is a timer-driven FrameScheduler at a fixed rate.
type TickerFrames struct {
	interval time.Duration
}

// NewTickerFrames returns a scheduler firing fps times per second (60 if fps <= 0).
func NewTickerFrames(fps int) *TickerFrames {
	if fps <= 0 {
		fps = 60
	}
	return &TickerFrames{interval: time.Second / time.Duration(fps)}
}

func (t *TickerFrames) RequestFrame(cb func(now time.Time)) func() {
	var once sync.Once
	cancelled := make(chan struct{})
	timer := time.AfterFunc(t.interval, func() {
		select {
		case <-cancelled:
			return
		default:
		}
		cb(time.Now())
	})
	return func() {
		once.Do(func() {
			close(cancelled)
			timer.Stop()
		})
	}
}

// heapInUse is the default MemoryReader.
func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
