package handlers

import (
	"context"

	"dashshot/internal/logger"
	"dashshot/internal/models"
	"dashshot/internal/services"
	"dashshot/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/rs/zerolog/log"
)

type Capturer interface {
	Capture(ctx context.Context, req models.CaptureRequest) string
}

type ThrottleReader interface {
	Get(ctx context.Context, dashboardID string) (*models.DashboardThrottle, error)
}

type QueueReader interface {
	Snapshot() services.QueueSnapshot
}

type CaptureHandler struct {
	Service  Capturer
	Throttle ThrottleReader
	Queue    QueueReader
}

type CaptureResponse struct {
	Image string `json:"image"`
	Ready bool   `json:"ready"`
}

// Capture plans a screenshot and replies with the latest stored one. An
// empty image is not an error: the caller polls.
func (h *CaptureHandler) Capture(c *gin.Context) {
	var req models.CaptureRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.DashboardID = c.Param("id")

	if e := log.Debug(); e.Enabled() {
		raw, _ := c.Get(gin.BodyBytesKey)
		body, _ := raw.([]byte)
		e.Str("dashboardId", req.DashboardID).
			RawJSON("payload", logger.RedactSecrets(body, "dashboard.steps", "secrets")).
			Msg("📥 Capture request")
	}

	image := h.Service.Capture(c.Request.Context(), req)
	if image == "" {
		response.Pending(c, CaptureResponse{})
		return
	}
	response.Success(c, CaptureResponse{Image: image, Ready: true})
}

func (h *CaptureHandler) GetThrottle(c *gin.Context) {
	row, err := h.Throttle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalServerError(c, "failed to load dashboard")
		return
	}
	if row == nil {
		response.NotFound(c, "dashboard has no captures")
		return
	}
	response.Success(c, row)
}

func (h *CaptureHandler) GetQueue(c *gin.Context) {
	response.Success(c, h.Queue.Snapshot())
}
