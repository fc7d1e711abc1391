package handler

import (
	"errors"
	"net/http"
	"strconv"

	"procgrid/app/middleware"
	"procgrid/internal/model"
	"procgrid/internal/service"
	"procgrid/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ProcessHandler handles process operations
type ProcessHandler struct {
	processService *service.ProcessService
}

// NewProcessHandler creates process handler
func NewProcessHandler(processService *service.ProcessService) *ProcessHandler {
	return &ProcessHandler{processService: processService}
}

// Admit submits a process for admission
// @Summary Admit a process
// @Description Reserve resources and create a new process
// @Tags processes
// @Accept json
// @Produce json
// @Param request body model.AdmitRequest true "Admission request"
// @Success 201 {object} model.AdmitResponse
// @Router /processes [post]
func (h *ProcessHandler) Admit(c *gin.Context) {
	var req model.AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid admit request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.processService.Admit(c.Request.Context(), middleware.OwnerID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrResourceExhausted):
			// Admission is reject-on-exhaustion: the caller frees capacity
			// or retries later, nothing is queued server side.
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient resources"})
		case errors.Is(err, model.ErrPermissionDenied):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "owner identity required"})
		case errors.Is(err, model.ErrInvalidProcess):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.ErrorCtx(c.Request.Context(), "admission failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Cancel requests cancellation of a process
// @Summary Cancel a process
// @Description Request cancellation; always acknowledged with ok
// @Tags processes
// @Param process_id path string true "Process ID"
// @Success 200 {object} model.CancelResponse
// @Router /cancel/{process_id} [post]
func (h *ProcessHandler) Cancel(c *gin.Context) {
	processID := c.Param("process_id")
	if processID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "process_id required"})
		return
	}

	resp := h.processService.Cancel(c.Request.Context(), processID, middleware.OwnerID(c))
	c.JSON(http.StatusOK, resp)
}

// Status gets process status
// @Summary Get process status
// @Description Get process status by process ID
// @Tags processes
// @Produce json
// @Param process_id path string true "Process ID"
// @Success 200 {object} model.ProcessResponse
// @Router /status/{process_id} [get]
func (h *ProcessHandler) Status(c *gin.Context) {
	processID := c.Param("process_id")
	if processID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "process_id required"})
		return
	}

	resp, err := h.processService.GetStatus(c.Request.Context(), processID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidProcess) {
			c.JSON(http.StatusNotFound, gin.H{"error": "process not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get process status, process_id: %s, error: %v", processID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List lists processes with optional filtering
// @Summary List processes
// @Tags processes
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /processes [get]
func (h *ProcessHandler) List(c *gin.Context) {
	filter := model.ProcessFilter{
		OwnerID:         c.Query("owner_id"),
		GatewayServerID: c.Query("gateway_server_id"),
	}
	if state := c.Query("state"); state != "" {
		s := model.ProcessState(state)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state filter"})
			return
		}
		filter.State = s
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filter.Offset = offset
	}

	procs, err := h.processService.ListProcesses(c.Request.Context(), filter)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list processes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processes": procs,
		"count":     len(procs),
	})
}
