// Package poller keeps a dashboard's view of orders and notifications current
// by polling the real-time updates endpoint with a timestamp cursor.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"courier-pulse/pkg/model"
	"courier-pulse/pkg/version"
)

// UpdatesPath is the real-time updates endpoint relative to the API base.
const UpdatesPath = "/api/orders/real_time_updates/"

var (
	// ErrMalformedResponse is returned when the body does not match the
	// {orders, notifications, timestamp, has_updates} contract.
	ErrMalformedResponse = errors.New("malformed real-time update response")
	// ErrStaleBatch is returned when a batch is older than the applied cursor.
	ErrStaleBatch = errors.New("stale update batch")
	// ErrPollInFlight is returned by PollOnce while another poll is outstanding.
	ErrPollInFlight = errors.New("poll already in flight")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "updates endpoint returned " + e.Status
	}
	return fmt.Sprintf("updates endpoint returned %s body=%s", e.Status, e.Body)
}

// State is the coarse poller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// Stats are cumulative counters.
type Stats struct {
	Polls       int64     `json:"polls"`
	Failures    int64     `json:"failures"`
	Skipped     int64     `json:"skipped"`
	Stale       int64     `json:"stale"`
	Discarded   int64     `json:"discarded"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Options configures a Poller. BaseURL is required.
type Options struct {
	BaseURL string
	Client  *http.Client
	// Token returns the bearer credential; empty means no Authorization header.
	Token func() string
	// Observe wraps every HTTP round trip, e.g. perf.Monitor.MeasureInteraction.
	Observe func(kind string, op func() error) error
	OnBatch func(model.UpdateBatch)
	OnError func(error)
}

// Poller issues cursor-based polls. The cursor only ever moves forward.
type Poller struct {
	opts     Options
	endpoint string

	inFlight atomic.Bool

	mu       sync.Mutex
	cursor   string
	cursorAt time.Time
	running  bool
	stopped  bool
	stopCh   chan struct{}
	stats    Stats
}

// New validates opts and returns an idle poller with no cursor.
func New(opts Options) (*Poller, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("poller: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("poller: parse base URL: %w", err)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Poller{opts: opts, endpoint: base + UpdatesPath}, nil
}

// Poll fetches one batch. The since parameter is sent only for a non-empty
// cursor. Poll does not touch the stored cursor.
func (p *Poller) Poll(ctx context.Context, cursor string) (model.UpdateBatch, error) {
	target := p.endpoint
	if cursor != "" {
		target += "?" + url.Values{"since": {cursor}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.UpdateBatch{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if p.opts.Token != nil {
		if tok := p.opts.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := p.opts.Client.Do(req)
	if err != nil {
		return model.UpdateBatch{}, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.UpdateBatch{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	return decodeBatch(resp.Body)
}

// PollOnce runs one scheduled tick: poll with the stored cursor, then apply
// the batch. A failed poll leaves the cursor where it was.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		return ErrPollInFlight
	}
	defer p.inFlight.Store(false)

	since := p.Cursor()
	batch, err := p.fetch(ctx, since)
	if err != nil {
		p.mu.Lock()
		p.stats.Polls++
		p.stats.Failures++
		p.stats.LastError = err.Error()
		p.mu.Unlock()
		log.Printf("poll failed since=%q: %v", since, err)
		if p.opts.OnError != nil {
			p.opts.OnError(err)
		}
		return err
	}
	applied, err := p.apply(batch)
	if err != nil || !applied {
		return err
	}
	if p.opts.OnBatch != nil {
		p.opts.OnBatch(batch)
	}
	return nil
}

func (p *Poller) fetch(ctx context.Context, since string) (model.UpdateBatch, error) {
	if p.opts.Observe == nil {
		return p.Poll(ctx, since)
	}
	var batch model.UpdateBatch
	err := p.opts.Observe("poll", func() error {
		var err error
		batch, err = p.Poll(ctx, since)
		return err
	})
	return batch, err
}

// apply advances the cursor unless the batch is older than what is already
// applied or the poller was stopped while the request was out. It reports
// false for a discarded batch.
func (p *Poller) apply(batch model.UpdateBatch) (bool, error) {
	ts, err := ParseCursor(batch.Timestamp)
	if err != nil {
		return false, fmt.Errorf("%w: timestamp %q", ErrMalformedResponse, batch.Timestamp)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Polls++
	if p.stopped {
		p.stats.Discarded++
		log.Printf("poll result discarded after stop timestamp=%s", batch.Timestamp)
		return false, nil
	}
	if p.cursor != "" && ts.Before(p.cursorAt) {
		p.stats.Stale++
		log.Printf("stale batch dropped timestamp=%s cursor=%s", batch.Timestamp, p.cursor)
		return false, ErrStaleBatch
	}
	p.cursor = batch.Timestamp
	p.cursorAt = ts
	p.stats.LastSuccess = time.Now()
	p.stats.LastError = ""
	return true, nil
}

// Start polls immediately and then once per interval until Stop or ctx ends.
// Each tick runs on its own goroutine; a tick that finds the previous poll
// still outstanding is skipped. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poller: interval must be positive, got %s", interval)
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopped = false
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	log.Printf("poller started endpoint=%s interval=%s", p.endpoint, interval)
	go p.loop(ctx, interval, stopCh)
	return nil
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, stopCh chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.stopCh == stopCh {
				p.running = false
				p.stopped = true
			}
			p.mu.Unlock()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	go func() {
		if err := p.PollOnce(ctx); errors.Is(err, ErrPollInFlight) {
			log.Printf("previous poll still in flight; skipping tick")
		}
	}()
}

// Stop halts future ticks. A request already on the wire completes, but its
// batch is discarded. Stop is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		close(p.stopCh)
		p.running = false
		log.Printf("poller stopped cursor=%q", p.cursor)
	}
	p.stopped = true
}

// Cursor returns the last applied timestamp, or "" before the first success.
func (p *Poller) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Poller) State() State {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	switch {
	case stopped:
		return StateStopped
	case p.inFlight.Load():
		return StatePolling
	default:
		return StateIdle
	}
}

func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
