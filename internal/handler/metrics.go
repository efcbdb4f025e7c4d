package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"checkin/internal/quiz"
)

// Metrics holds the HTTP collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.HistogramVec
	steps    *prometheus.CounterVec
}

// NewMetrics registers the HTTP collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkin",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "join_steps_total",
			Help:      "Join flow transitions by resulting state.",
		}, []string{"state"}),
	}
}

// Instrument observes request latency.
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) step(s quiz.State) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(s)).Inc()
}
