package handler

import (
	"errors"
	"net/http"
	"strconv"

	"procgrid/internal/model"
	"procgrid/internal/service"
	"procgrid/pkg/logger"
	mysqlStore "procgrid/pkg/store/mysql"

	"github.com/gin-gonic/gin"
)

// ServerHandler handles server registry operations
type ServerHandler struct {
	serverService *service.ServerService
	eventRepo     *mysqlStore.ProcessEventRepository
}

// NewServerHandler creates server handler
func NewServerHandler(serverService *service.ServerService, eventRepo *mysqlStore.ProcessEventRepository) *ServerHandler {
	return &ServerHandler{
		serverService: serverService,
		eventRepo:     eventRepo,
	}
}

// Register registers a new server
// @Summary Register a server
// @Description Register a server with its total resource pool
// @Tags servers
// @Accept json
// @Produce json
// @Param request body model.RegisterServerRequest true "Server registration"
// @Success 201 {object} model.Server
// @Router /servers [post]
func (h *ServerHandler) Register(c *gin.Context) {
	var req model.RegisterServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.ErrorCtx(c.Request.Context(), "invalid register request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	server, err := h.serverService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrInvalidProcess) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to register server: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, server)
}

// Get returns one server with its pool snapshot
// @Summary Get a server
// @Tags servers
// @Produce json
// @Param server_id path string true "Server ID"
// @Success 200 {object} model.Server
// @Router /servers/{server_id} [get]
func (h *ServerHandler) Get(c *gin.Context) {
	serverID := c.Param("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id required"})
		return
	}

	server, err := h.serverService.Get(c.Request.Context(), serverID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidProcess) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		logger.ErrorCtx(c.Request.Context(), "failed to get server, server_id: %s, error: %v", serverID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, server)
}

// List returns all servers
// @Summary List servers
// @Tags servers
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /servers [get]
func (h *ServerHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	servers, err := h.serverService.List(c.Request.Context(), limit, offset)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list servers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"servers": servers,
		"count":   len(servers),
	})
}

// Events returns the recent lifecycle events for a gateway server
// @Summary List server lifecycle events
// @Tags servers
// @Produce json
// @Param server_id path string true "Server ID"
// @Success 200 {object} map[string]interface{}
// @Router /servers/{server_id}/events [get]
func (h *ServerHandler) Events(c *gin.Context) {
	serverID := c.Param("server_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server_id required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := h.eventRepo.GetServerEvents(c.Request.Context(), serverID, limit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to list server events, server_id: %s, error: %v", serverID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
