package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skillyhead", Name: "submissions_total", Help: "Accepted submissions by outcome",
	}, []string{"outcome"})
	GradesPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skillyhead", Name: "grades_posted_total", Help: "Per-question results posted by evaluators",
	})
	AuthzDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skillyhead", Name: "authz_denials_total", Help: "Denied authorization checks by target kind",
	}, []string{"target"})
	CapacityRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "skillyhead", Name: "capacity_rejections_total", Help: "Seat assignments rejected by licence limits",
	})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skillyhead", Name: "question_cache_lookups_total", Help: "Question cache lookups by backend and result",
	}, []string{"backend", "result"})
	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skillyhead", Name: "http_request_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(Submissions, GradesPosted, AuthzDenials, CapacityRejections, CacheLookups, HTTPRequests)
}

func Handler() http.Handler { return promhttp.Handler() }
