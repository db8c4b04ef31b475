package clmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Résultats possibles d'une interrogation de fournisseur
const (
	GeoHit     = "hit"
	GeoMiss    = "miss"
	GeoError   = "error"
	GeoTimeout = "timeout"
	GeoSkipped = "skipped"
)

var (
	ActivityEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackapi_activity_entries_total",
		Help: "Total number of activity log entries appended.",
	})

	ActivityGeoEnriched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackapi_activity_geo_enriched_total",
		Help: "Activity log entries stored with geolocation data.",
	})

	PaymentClicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackapi_payment_clicks_total",
		Help: "Total number of payment clicks accepted by the counter.",
	})

	PaymentClicksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackapi_payment_clicks_rejected_total",
		Help: "Payment clicks rejected because orderId was missing.",
	})

	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackapi_geo_lookups_total",
		Help: "Geolocation provider calls, labelled by provider and outcome.",
	}, []string{"provider", "outcome"})

	GeoCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackapi_geo_cache_hits_total",
		Help: "Geolocation results served from the cache.",
	})

	GeoResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackapi_geo_resolve_duration_ms",
		Help:    "End-to-end geolocation resolution latency in milliseconds.",
		Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 4000, 8000},
	})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackapi_persistence_errors_total",
		Help: "Store failures surfaced as server errors, labelled by operation.",
	}, []string{"operation"})
)
