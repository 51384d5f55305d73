// Package perf instruments frame cadence, animation spans and interaction
// latency for the dashboard process, keeping bounded rolling windows of
// samples and deriving averages and advisory suggestions from them.
package perf

import "time"

// Retention caps for the rolling windows.
const (
	FrameWindowSize       = 300
	InteractionWindowSize = 100
	RenderWindowSize      = 100
	AnimationWindowSize   = 50

	// FramesPerSample is how many frames elapse between two FrameSamples.
	FramesPerSample = 60
	// LongTaskThreshold is the frame gap reported as a long task.
	LongTaskThreshold = 50 * time.Millisecond
	// SuggestionWindow is the lookback used by OptimizationSuggestions.
	SuggestionWindow = 30 * time.Second
)

// Interaction types recorded by the monitor itself.
const (
	InteractionLongTask = "long-task"
)

// FrameSample is one fps/frame time measurement.
type FrameSample struct {
	FPS         float64   `json:"fps"`
	FrameTimeMs float64   `json:"frame_time_ms"`
	MemoryBytes uint64    `json:"memory_bytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// RenderSample is the time a named component took to render.
type RenderSample struct {
	Component  string    `json:"component"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// InteractionMetrics describes one timed user or system interaction.
type InteractionMetrics struct {
	Type           string    `json:"type"`
	StartTime      time.Time `json:"start_time"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Success        bool      `json:"success"`
}

// AnimationSummary is produced when an animation span is ended.
type AnimationSummary struct {
	AnimationID string    `json:"animation_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationMs  float64   `json:"duration_ms"`
	FrameCount  int       `json:"frame_count"`
	AverageFPS  float64   `json:"average_fps"`
}

// Snapshot is a point-in-time copy of everything the monitor retains.
type Snapshot struct {
	Monitoring       bool                 `json:"monitoring"`
	Frames           []FrameSample        `json:"frames"`
	Interactions     []InteractionMetrics `json:"interactions"`
	Renders          []RenderSample       `json:"renders"`
	Animations       []AnimationSummary   `json:"animations"`
	ActiveAnimations []string             `json:"active_animations"`
}

// Averages are means over a set of retained samples. Empty sets average to 0.
type Averages struct {
	FPS                  float64 `json:"fps"`
	FrameTimeMs          float64 `json:"frame_time_ms"`
	InteractionLatencyMs float64 `json:"interaction_latency_ms"`
	MemoryBytes          uint64  `json:"memory_bytes"`
	FrameSamples         int     `json:"frame_samples"`
	InteractionSamples   int     `json:"interaction_samples"`
}

// Thresholds drive OptimizationSuggestions.
type Thresholds struct {
	MinFPS                  float64 `yaml:"min_fps"`
	MaxFrameTimeMs          float64 `yaml:"max_frame_time_ms"`
	MaxInteractionLatencyMs float64 `yaml:"max_interaction_latency_ms"`
	MaxMemoryBytes          uint64  `yaml:"max_memory_bytes"`
}

// DefaultThresholds returns the stock advisory limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFPS:                  30,
		MaxFrameTimeMs:          33,
		MaxInteractionLatencyMs: 100,
		MaxMemoryBytes:          100 * 1000 * 1000,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MinFPS <= 0 {
		t.MinFPS = d.MinFPS
	}
	if t.MaxFrameTimeMs <= 0 {
		t.MaxFrameTimeMs = d.MaxFrameTimeMs
	}
	if t.MaxInteractionLatencyMs <= 0 {
		t.MaxInteractionLatencyMs = d.MaxInteractionLatencyMs
	}
	if t.MaxMemoryBytes == 0 {
		t.MaxMemoryBytes = d.MaxMemoryBytes
	}
	return t
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
