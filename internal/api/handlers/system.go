package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Check is one dependency probed by /readyz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type SystemHandler struct {
	checks  []Check
	started time.Time
}

func NewSystemHandler(checks ...Check) *SystemHandler {
	return &SystemHandler{checks: checks, started: time.Now()}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz probes every dependency in parallel so one slow service does not
// push the others past the deadline.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := make([]error, len(h.checks))
	var wg sync.WaitGroup
	for i, chk := range h.checks {
		wg.Add(1)
		go func(i int, chk Check) {
			defer wg.Done()
			results[i] = chk.Ping(ctx)
		}(i, chk)
	}
	wg.Wait()

	checks := make(map[string]string, len(h.checks))
	status, ready := http.StatusOK, "ready"
	for i, chk := range h.checks {
		if err := results[i]; err != nil {
			checks[chk.Name] = err.Error()
			status, ready = http.StatusServiceUnavailable, "not ready"
			continue
		}
		checks[chk.Name] = "ok"
	}

	c.JSON(status, gin.H{"status": ready, "checks": checks})
}
