package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vms-service/internal/domain/vms"
	"vms-service/internal/service"
)

type Handler struct {
	monitor *service.MonitorService
	log     zerolog.Logger
}

func NewHandler(monitor *service.MonitorService, log zerolog.Logger) *Handler {
	return &Handler{
		monitor: monitor,
		log:     log,
	}
}

// Register mounts the control and query API. metrics may be nil.
func (h *Handler) Register(r *gin.Engine, metricsPath string, metrics http.Handler) {
	r.GET("/health", h.health)
	if metrics != nil {
		r.GET(metricsPath, gin.WrapH(metrics))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/cameras", h.registerCamera)
		api.GET("/cameras", h.listCameras)
		api.DELETE("/cameras/:id", h.removeCamera)
		api.POST("/cameras/:id/start", h.startCamera)
		api.POST("/cameras/:id/stop", h.stopCamera)
		api.PUT("/cameras/:id/boundary", h.setBoundary)
		api.GET("/cameras/:id/activity", h.cameraActivity)

		api.GET("/alerts", h.listAlerts)
		api.GET("/events", h.listEvents)
		api.GET("/visitors/:id/history", h.visitorHistory)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) registerCamera(c *gin.Context) {
	var req service.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	status, err := h.monitor.RegisterCamera(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(status))
}

func (h *Handler) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.monitor.ListCameras()))
}

func (h *Handler) removeCamera(c *gin.Context) {
	if err := h.monitor.RemoveCamera(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startCamera(c *gin.Context) {
	status, err := h.monitor.StartCamera(c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(status))
}

func (h *Handler) stopCamera(c *gin.Context) {
	status, err := h.monitor.StopCamera(c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(status))
}

type boundaryRequest struct {
	Boundary [][2]float64 `json:"boundary"`
}

func (h *Handler) setBoundary(c *gin.Context) {
	var req boundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	status, err := h.monitor.SetBoundary(c.Request.Context(), c.Param("id"), req.Boundary)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(status))
}

func (h *Handler) cameraActivity(c *gin.Context) {
	activity, err := h.monitor.CameraActivity(
		c.Request.Context(),
		c.Param("id"),
		strings.TrimSpace(c.Query("since")),
		queryInt(c, "limit", 0),
	)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(activity))
}

func (h *Handler) listAlerts(c *gin.Context) {
	events, err := h.monitor.ListAlerts(c.Request.Context(), eventQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) listEvents(c *gin.Context) {
	events, err := h.monitor.ListEvents(c.Request.Context(), eventQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) visitorHistory(c *gin.Context) {
	events, err := h.monitor.VisitorHistory(c.Request.Context(), c.Param("id"), eventQuery(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func eventQuery(c *gin.Context) service.EventQuery {
	return service.EventQuery{
		VisitorID: strings.TrimSpace(c.Query("visitor_id")),
		CameraID:  strings.TrimSpace(c.Query("camera_id")),
		EventType: strings.TrimSpace(c.Query("event_type")),
		From:      strings.TrimSpace(c.Query("from")),
		To:        strings.TrimSpace(c.Query("to")),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return def
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vms.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, vms.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, vms.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
