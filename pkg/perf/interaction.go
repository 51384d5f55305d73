package perf

// Measure runs op and records its end-to-end latency as an interaction of the
// given kind. The value and error of op are returned untouched; a panic is
// recorded as a failed interaction and keeps unwinding. A nil Monitor just
// runs op.
func Measure[T any](m *Monitor, kind string, op func() (T, error)) (result T, err error) {
	if m == nil {
		return op()
	}
	start := m.clock()
	ok := false
	defer func() {
		m.RecordInteraction(InteractionMetrics{
			Type:           kind,
			StartTime:      start,
			ResponseTimeMs: millis(m.clock().Sub(start)),
			Success:        ok,
		})
	}()
	result, err = op()
	ok = err == nil
	return result, err
}

// MeasureInteraction is Measure for operations that only return an error.
func (m *Monitor) MeasureInteraction(kind string, op func() error) error {
	_, err := Measure(m, kind, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
