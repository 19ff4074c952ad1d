package apirouter

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/cbserver/internal/callback"
	"github.com/hookdeck/cbserver/internal/dispatcher"
	"github.com/hookdeck/cbserver/internal/logging"
	"go.uber.org/zap"
)

// Dispatcher is the subset of *dispatcher.Dispatcher the handlers drive.
type Dispatcher interface {
	DeliverOnce(ctx context.Context, cb callback.Callback, message string) error
	Register(ctx context.Context, cb callback.Callback, message string, period int) error
	Shutdown(ctx context.Context) error
	Stats() dispatcher.Stats
}

var _ Dispatcher = (*dispatcher.Dispatcher)(nil)

type DispatchHandlers struct {
	logger          *logging.Logger
	dispatcher      Dispatcher
	registry        callback.Registry
	shutdownTimeout time.Duration
}

func NewDispatchHandlers(logger *logging.Logger, d Dispatcher, registry callback.Registry, shutdownTimeout time.Duration) *DispatchHandlers {
	return &DispatchHandlers{
		logger:          logger,
		dispatcher:      d,
		registry:        registry,
		shutdownTimeout: shutdownTimeout,
	}
}

type DeliverRequest struct {
	Callback *callback.Ref `json:"callback" binding:"required"`
	Message  string        `json:"message"`
}

type RegisterRequest struct {
	Callback      *callback.Ref `json:"callback" binding:"required"`
	Message       string        `json:"message"`
	PeriodSeconds int           `json:"period_seconds" binding:"required,min=1,max=65535"`
}

type ShutdownResponse struct {
	Success bool `json:"success"`
}

func (h *DispatchHandlers) Deliver(c *gin.Context) {
	var input DeliverRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, http.StatusUnprocessableEntity, err)
		return
	}

	cb, err := h.registry.Resolve(c.Request.Context(), input.Callback)
	if err != nil {
		c.Error(err)
		return
	}
	defer cb.Close()

	// Delivery failures are logged by the dispatcher and never surface here.
	if err := h.dispatcher.DeliverOnce(c.Request.Context(), cb, input.Message); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DispatchHandlers) Register(c *gin.Context) {
	var input RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, http.StatusUnprocessableEntity, err)
		return
	}

	cb, err := h.registry.Resolve(c.Request.Context(), input.Callback)
	if err != nil {
		c.Error(err)
		return
	}

	// On success the worker owns cb.
	if err := h.dispatcher.Register(c.Request.Context(), cb, input.Message, input.PeriodSeconds); err != nil {
		cb.Close()
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":        true,
		"period_seconds": input.PeriodSeconds,
	})
}

// Shutdown blocks until every worker has exited. The wait is detached from
// the request so a disconnecting client cannot abandon the drain.
func (h *DispatchHandlers) Shutdown(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.shutdownTimeout)
		defer cancel()
	}

	if err := h.dispatcher.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.logger.Ctx(c.Request.Context()).Warn("shutdown timed out waiting for workers",
				zap.Int("live_workers", h.dispatcher.Stats().LiveWorkers))
			c.Error(NewErrServiceUnavailable(err, "shutdown timed out waiting for workers"))
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, ShutdownResponse{Success: true})
}

func (h *DispatchHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.dispatcher.Stats())
}

func (h *DispatchHandlers) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.registry.ProviderTypes()})
}
