package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures one protocol round trip.
type Timer struct {
	start   time.Time
	metrics *Metrics
	kind    string
}

// NewTimer starts timing a request of the given kind.
func NewTimer(metrics *Metrics, kind string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kind:    kind,
	}
}

// Stop records the elapsed time with outcome.
func (t *Timer) Stop(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.RecordRoundTrip(t.kind, outcome, elapsed)
	return elapsed
}
