// pulse-tail follows a running dashboard's stream and logs batches and
// performance reports as they arrive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"courier-pulse/pkg/dashboard"
	"courier-pulse/pkg/model"
	"courier-pulse/pkg/stream"
)

func main() {
	addr := flag.String("dashboard", "http://127.0.0.1:8090", "dashboard base URL")
	token := flag.String("token", os.Getenv("AUTH_TOKEN"), "bearer token (env AUTH_TOKEN)")
	raw := flag.Bool("raw", false, "print every message as JSON")
	flag.Parse()

	c, err := stream.NewClient(*addr, *token)
	if err != nil {
		log.Fatal(err)
	}
	if *raw {
		c.On("*", func(e stream.Envelope) {
			b, _ := json.Marshal(e)
			log.Printf("%s", b)
		})
	} else {
		c.On(stream.TypeUpdateBatch, logBatch)
		c.On(stream.TypeMetrics, logMetrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Run(ctx)
}

func logBatch(e stream.Envelope) {
	var b model.UpdateBatch
	if err := json.Unmarshal(e.Payload, &b); err != nil {
		log.Printf("bad update_batch payload: %v", err)
		return
	}
	if !b.HasUpdates {
		return
	}
	for _, o := range b.Orders {
		log.Printf("order %s tracking=%s status=%s updated %s", o.ID, o.TrackingNumber, o.Status, humanize.Time(o.UpdatedAt))
	}
	for _, n := range b.Notifications {
		log.Printf("notice kind=%s order=%s %s", n.Kind, n.OrderID, n.Title)
	}
}

func logMetrics(e stream.Envelope) {
	var r dashboard.MetricsReport
	if err := json.Unmarshal(e.Payload, &r); err != nil {
		log.Printf("bad metrics payload: %v", err)
		return
	}
	log.Printf("fps=%.1f frame=%.1fms latency=%.1fms mem=%s poller=%s polls=%d failures=%d",
		r.Averages.FPS, r.Averages.FrameTimeMs, r.Averages.InteractionLatencyMs,
		humanize.Bytes(r.Averages.MemoryBytes), r.Poller.State, r.Poller.Stats.Polls, r.Poller.Stats.Failures)
	for _, s := range r.Suggestions {
		log.Printf("suggestion: %s", s)
	}
}
