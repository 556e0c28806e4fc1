package services

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var fanoutPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_fanout_published_total",
		Help: "Total number of events published to the relay",
	},
	[]string{"event", "status"},
)

type notice struct {
	topic   string
	event   string
	payload any
}

// publishAll publishes the notices concurrently and waits for all of them.
// There is no retry; the first failure is returned.
func publishAll(ctx context.Context, pub Publisher, notices ...notice) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range notices {
		g.Go(func() error {
			err := pub.Publish(gctx, n.topic, n.event, n.payload)
			status := "success"
			if err != nil {
				status = "failed"
			}
			fanoutPublishedTotal.WithLabelValues(n.event, status).Inc()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Upstream("failed to publish event", err)
	}
	return nil
}
