package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// result: created, reactivated, rejected
	EnrollmentCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_enrollments_total",
			Help: "Enrollment attempts by outcome",
		},
		[]string{"result"},
	)

	AttemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_assessment_attempts_total",
			Help: "Graded assessment attempts",
		},
		[]string{"passed"},
	)

	ProgressRecalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lms_progress_recalculations_total",
			Help: "Enrollment progress rollups written back",
		},
	)

	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lms_assignment_submissions_total",
			Help: "Assignment submissions",
		},
		[]string{"late"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(EnrollmentCounter)
	prometheus.MustRegister(AttemptCounter)
	prometheus.MustRegister(ProgressRecalculations)
	prometheus.MustRegister(SubmissionCounter)
}

func RecordEnrollment(result string) {
	EnrollmentCounter.WithLabelValues(result).Inc()
}

func RecordAttempt(passed bool) {
	AttemptCounter.WithLabelValues(strconv.FormatBool(passed)).Inc()
}

func RecordSubmission(late bool) {
	SubmissionCounter.WithLabelValues(strconv.FormatBool(late)).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
