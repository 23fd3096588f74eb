// Package metrics exposes the counters of the selection and the dispatch
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "s2chips"

var (
	CandidatesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_read_total",
		Help:      "Total candidate rows read.",
	})
	LocationsSelected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locations_selected_total",
		Help:      "Total locations with a selected scene.",
	})
	ScenesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scenes_resolved_total",
		Help:      "Total selections resolved, by collection.",
	}, []string{"collection"})
	RequestsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_dispatched_total",
		Help:      "Total cube requests handed to the fetcher.",
	})
	RequestsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_dropped_total",
		Help:      "Total selections not dispatched (not in the primary collection).",
	})
)

// Registry holds the collectors of the package
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(CandidatesRead, LocationsSelected, ScenesResolved, RequestsDispatched, RequestsDropped)
}

// NewHandler returns the router serving /metrics
func NewHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return handlers.RecoveryHandler()(r)
}

// Serve serves /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) {
	s := http.Server{
		Addr:    addr,
		Handler: NewHandler(),
	}
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger(ctx).Error("metrics.ListenAndServe", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cncl := context.WithTimeout(context.Background(), 5*time.Second)
		defer cncl()
		s.Shutdown(sctx)
	}()
}
