package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HandlerMetrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type ServiceMetrics struct {
	MethodCount    *prometheus.CounterVec
	MethodDuration *prometheus.HistogramVec
	CacheLookups   *prometheus.CounterVec
}

type RepositoryMetrics struct {
	QueryCount    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewHandlerMetrics(reg prometheus.Registerer) *HandlerMetrics {
	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_requests_total",
			Help: "Total number of HTTP requests handled by the handler layer.",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_request_duration_seconds",
			Help:    "Histogram of response latency for handler in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	reg.MustRegister(requestCount, requestDuration)

	return &HandlerMetrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
	}
}

func NewServiceMetrics(reg prometheus.Registerer) *ServiceMetrics {
	methodCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_methods_total",
			Help: "Total number of service methods executed.",
		},
		[]string{"method", "status"},
	)

	methodDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_method_duration_seconds",
			Help:    "Histogram of service method execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_cache_lookups_total",
			Help: "Advert cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	reg.MustRegister(methodCount, methodDuration, cacheLookups)

	return &ServiceMetrics{
		MethodCount:    methodCount,
		MethodDuration: methodDuration,
		CacheLookups:   cacheLookups,
	}
}

func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	queryCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_queries_total",
			Help: "Total number of database queries executed.",
		},
		[]string{"query", "status"},
	)

	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_query_duration_seconds",
			Help:    "Histogram of database query execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query", "status"},
	)

	reg.MustRegister(queryCount, queryDuration)

	return &RepositoryMetrics{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
	}
}

// HTTPHandler exposes everything gathered by g in the prometheus text format.
func HTTPHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
