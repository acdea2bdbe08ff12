// Package metrics exposes the driver's counters and histograms as
// Prometheus collectors: cache hit/miss rates, bytes fetched, solve
// iterations, and transaction duration. Unlike telemetry (per-run
// structured trace), metrics are process-lifetime cumulative and meant to
// be scraped, so the two packages are wired independently.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solv",
		Name:      "cache_lookups_total",
		Help:      "Cookie/blob/metadata cache lookups, partitioned by outcome.",
	}, []string{"store", "outcome"})

	BytesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solv",
		Name:      "fetch_bytes_total",
		Help:      "Bytes retrieved through the Fetcher, partitioned by repo alias.",
	}, []string{"repo"})

	SolveIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "solv",
		Name:      "solve_iterations",
		Help:      "Number of solve/present-problems/apply-solution rounds per Problem Loop run.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	})

	TransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "solv",
		Name:      "transaction_duration_seconds",
		Help:      "Wall time of the Transaction Executor's download+commit phases.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
)

// RecordCacheLookup is a thin helper so call sites don't repeat the label
// pair; store is e.g. "cookie", "blobcache", "cachestore".
func RecordCacheLookup(store string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CacheLookups.WithLabelValues(store, outcome).Inc()
}

// ObserveTransactionPhase records how long one named phase ("download",
// "commit") of a single transaction took.
func ObserveTransactionPhase(phase string, d time.Duration) {
	TransactionDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// Server is an HTTP listener exposing /metrics in the Prometheus text
// format. No command-line flag of solv starts one.
type Server struct {
	httpServer *http.Server
}

// Listen starts serving /metrics on addr in the background. Callers are
// responsible for calling Shutdown before process exit. addr binds
// immediately so a bad address fails here rather than silently never
// serving.
func Listen(addr string) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = err
		}
	}()
	return &Server{httpServer: srv}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
