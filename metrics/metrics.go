// Package metrics exposes prometheus counters for auth activity and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	s2s "github.com/goliatone/go-s2s"
)

const namespace = "s2s"

// Collector owns the registry so tests can use a private one
type Collector struct {
	registry *prometheus.Registry
	activity *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Auth and user activity events by type.",
		}, []string{"event", "actor_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	c.registry.MustRegister(
		c.activity,
		c.requests,
		c.latency,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return c
}

// Registry is exposed for tests and extra collectors
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record implements s2s.ActivitySink
func (c *Collector) Record(_ context.Context, event s2s.ActivityEvent) error {
	actorType := event.Actor.Type
	if actorType == "" {
		actorType = "unknown"
	}
	c.activity.WithLabelValues(string(event.EventType), actorType).Inc()
	return nil
}

// Middleware counts every request that reaches the router
func (c *Collector) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			start := time.Now()
			err := next(ctx)

			status := http.StatusOK
			if err != nil {
				status = s2s.StatusCode(s2s.AsRichError(err))
			}

			c.requests.WithLabelValues(ctx.Method(), strconv.Itoa(status)).Inc()
			c.latency.WithLabelValues(ctx.Method()).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the text exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics listener until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
