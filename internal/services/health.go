package services

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/worker"
)

type healthResponse struct {
	worker.HealthStatus
	Dispatcher dispatcher.Stats `json:"dispatcher"`
}

// HealthHandler reports supervisor health together with the dispatcher's
// worker count. A stopping dispatcher is still healthy.
func HealthHandler(supervisor *worker.WorkerSupervisor, d *dispatcher.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracker := supervisor.GetHealthTracker()
		resp := healthResponse{
			HealthStatus: tracker.GetStatus(),
			Dispatcher:   d.Stats(),
		}
		if tracker.IsHealthy() {
			c.JSON(http.StatusOK, resp)
		} else {
			c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
}

// AddHealthRoutes exposes the health check at /healthz and /api/v1/healthz.
// Neither requires the API key.
func AddHealthRoutes(r *gin.Engine, supervisor *worker.WorkerSupervisor, d *dispatcher.Dispatcher) {
	healthHandler := HealthHandler(supervisor, d)
	r.GET("/healthz", healthHandler)
	r.GET("/api/v1/healthz", healthHandler)
}
