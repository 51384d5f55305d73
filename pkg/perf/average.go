package perf

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// AverageMetrics averages retained samples. With window <= 0 every retained
// sample counts; otherwise only samples newer than now-window do.
func (m *Monitor) AverageMetrics(window time.Duration) Averages {
	if window <= 0 {
		return averageOf(m.frameWin.Items(), m.interactionWin.Items())
	}
	cutoff := m.clock().Add(-window)
	return averageOf(
		m.frameWin.Filter(func(s FrameSample) bool { return s.Timestamp.After(cutoff) }),
		m.interactionWin.Filter(func(e InteractionMetrics) bool { return e.StartTime.After(cutoff) }),
	)
}

func averageOf(frames []FrameSample, interactions []InteractionMetrics) Averages {
	var out Averages
	out.FrameSamples = len(frames)
	out.InteractionSamples = len(interactions)
	if len(frames) > 0 {
		var fps, ft float64
		var mem uint64
		for _, f := range frames {
			fps += f.FPS
			ft += f.FrameTimeMs
			mem += f.MemoryBytes
		}
		n := float64(len(frames))
		out.FPS = fps / n
		out.FrameTimeMs = ft / n
		out.MemoryBytes = mem / uint64(len(frames))
	}
	if len(interactions) > 0 {
		var lat float64
		for _, e := range interactions {
			lat += e.ResponseTimeMs
		}
		out.InteractionLatencyMs = lat / float64(len(interactions))
	}
	return out
}

// OptimizationSuggestions compares the last 30 seconds of samples against the
// configured thresholds. The result is advisory text only.
func (m *Monitor) OptimizationSuggestions() []string {
	avg := m.AverageMetrics(SuggestionWindow)
	t := m.thresholds
	var out []string
	if avg.FrameSamples > 0 {
		if avg.FPS < t.MinFPS {
			out = append(out, fmt.Sprintf("Low frame rate (%.1f fps, target %.0f): reduce animation complexity or defer offscreen work", avg.FPS, t.MinFPS))
		}
		if avg.FrameTimeMs > t.MaxFrameTimeMs {
			out = append(out, fmt.Sprintf("Slow frames (%.1f ms avg, limit %.0f ms): split long-running work across frames", avg.FrameTimeMs, t.MaxFrameTimeMs))
		}
		if avg.MemoryBytes > t.MaxMemoryBytes {
			out = append(out, fmt.Sprintf("High memory usage (%s, limit %s): trim cached order history and detach unused listeners",
				humanize.Bytes(avg.MemoryBytes), humanize.Bytes(t.MaxMemoryBytes)))
		}
	}
	if avg.InteractionSamples > 0 && avg.InteractionLatencyMs > t.MaxInteractionLatencyMs {
		out = append(out, fmt.Sprintf("Slow interactions (%.0f ms avg, limit %.0f ms): debounce input handlers or move work off the interaction path", avg.InteractionLatencyMs, t.MaxInteractionLatencyMs))
	}
	return out
}
