// Package dashboard ties the update poller, the performance monitor, the poll
// journal and the websocket hub into one running dashboard backend.
package dashboard

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"courier-pulse/pkg/config"
	"courier-pulse/pkg/journal"
	"courier-pulse/pkg/model"
	"courier-pulse/pkg/perf"
	"courier-pulse/pkg/poller"
	"courier-pulse/pkg/stream"
)

const pruneEvery = time.Hour

// MetricsReport is broadcast to subscribers every metrics interval.
type MetricsReport struct {
	Averages    perf.Averages `json:"averages"`
	Suggestions []string      `json:"suggestions"`
	Poller      PollerStatus  `json:"poller"`
	Subscribers int           `json:"subscribers"`
}

// PollerStatus is the poller's externally visible state.
type PollerStatus struct {
	State  poller.State `json:"state"`
	Cursor string       `json:"cursor"`
	Stats  poller.Stats `json:"stats"`
}

// Service owns the dashboard components. Build it with New, serve Router and
// drive it with Run.
type Service struct {
	cfg     config.Dashboard
	monitor *perf.Monitor
	hub     *stream.Hub
	journal *journal.Journal
	poller  *poller.Poller

	mu      sync.Mutex
	applied string // cursor of the last batch handed to onBatch
}

// New wires the components. j may be nil when no journal is configured;
// client may be nil for a default client.
func New(cfg config.Dashboard, client *http.Client, j *journal.Journal) (*Service, error) {
	s := &Service{cfg: cfg, hub: stream.NewHub(), journal: j}
	s.monitor = perf.New(perf.Options{
		Frames:     perf.NewTickerFrames(cfg.FrameRate),
		Visibility: s.hub,
		Thresholds: cfg.Thresholds,
	})
	token := cfg.Token
	p, err := poller.New(poller.Options{
		BaseURL: cfg.BaseURL,
		Client:  client,
		Token:   func() string { return token },
		Observe: s.monitor.MeasureInteraction,
		OnBatch: s.onBatch,
		OnError: s.onError,
	})
	if err != nil {
		s.monitor.Destroy()
		s.hub.Close()
		return nil, err
	}
	s.poller = p
	return s, nil
}

func (s *Service) Monitor() *perf.Monitor { return s.monitor }
func (s *Service) Hub() *stream.Hub       { return s.hub }
func (s *Service) Poller() *poller.Poller { return s.poller }

func (s *Service) onBatch(b model.UpdateBatch) {
	s.mu.Lock()
	since := s.applied
	s.applied = b.Timestamp
	s.mu.Unlock()
	if b.HasUpdates {
		log.Printf("batch applied orders=%d notifications=%d cursor=%s", len(b.Orders), len(b.Notifications), b.Timestamp)
	}
	if s.journal != nil {
		if err := s.journal.RecordSuccess(context.Background(), since, b); err != nil {
			log.Printf("journal write failed: %v", err)
		}
	}
	s.hub.Broadcast(stream.TypeUpdateBatch, b)
}

func (s *Service) onError(err error) {
	if s.journal == nil {
		return
	}
	if jerr := s.journal.RecordFailure(context.Background(), s.poller.Cursor(), err); jerr != nil {
		log.Printf("journal write failed: %v", jerr)
	}
}

// Status reports the poller state.
func (s *Service) Status() PollerStatus {
	return PollerStatus{State: s.poller.State(), Cursor: s.poller.Cursor(), Stats: s.poller.Stats()}
}

// Report assembles the periodic metrics message.
func (s *Service) Report() MetricsReport {
	return MetricsReport{
		Averages:    s.monitor.AverageMetrics(perf.SuggestionWindow),
		Suggestions: s.monitor.OptimizationSuggestions(),
		Poller:      s.Status(),
		Subscribers: s.hub.Subscribers(),
	}
}

// Run starts monitoring and polling and blocks until ctx is done, then tears
// everything down.
func (s *Service) Run(ctx context.Context) error {
	s.monitor.StartMonitoring()
	if err := s.poller.Start(ctx, s.cfg.PollInterval); err != nil {
		s.shutdown()
		return err
	}
	metrics := time.NewTicker(s.cfg.MetricsInterval)
	defer metrics.Stop()
	prune := time.NewTicker(pruneEvery)
	defer prune.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-metrics.C:
			s.hub.Broadcast(stream.TypeMetrics, s.Report())
		case <-prune.C:
			s.pruneJournal(ctx)
		}
	}
}

func (s *Service) pruneJournal(ctx context.Context) {
	if s.journal == nil || s.cfg.JournalRetain <= 0 {
		return
	}
	n, err := s.journal.Prune(ctx, time.Now().Add(-s.cfg.JournalRetain))
	if err != nil {
		log.Printf("journal prune failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("journal pruned rows=%d", n)
	}
}

func (s *Service) shutdown() {
	s.poller.Stop()
	s.monitor.Destroy()
	s.hub.Close()
	log.Printf("dashboard stopped cursor=%q", s.poller.Cursor())
}
