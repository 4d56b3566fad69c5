package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/GriffinCanCode/IPCLab/backend/internal/coordinator"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	coord *coordinator.Coordinator
}

// NewHandlers creates a new handler set
func NewHandlers(coord *coordinator.Coordinator) *Handlers {
	return &Handlers{coord: coord}
}

// mechanismRequest is the body for lifecycle and send endpoints.
type mechanismRequest struct {
	Mechanism string `json:"mechanism" binding:"required"`
	Message   string `json:"message"`
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "IPC Lab Service (Go)",
		"version": "0.2.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"coordinator": gin.H{"running": h.coord.Running()},
	})
}

// Status returns the full coordinator status
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Status())
}

// Start activates a mechanism
func (h *Handlers) Start(c *gin.Context) {
	m, ok := h.bindMechanism(c)
	if !ok {
		return
	}
	if err := h.coord.Start(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mechanism": m})
}

// Stop deactivates a mechanism
func (h *Handlers) Stop(c *gin.Context) {
	m, ok := h.bindMechanism(c)
	if !ok {
		return
	}
	if err := h.coord.Stop(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mechanism": m})
}

// Restart bounces a mechanism
func (h *Handlers) Restart(c *gin.Context) {
	m, ok := h.bindMechanism(c)
	if !ok {
		return
	}
	if err := h.coord.Restart(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mechanism": m})
}

// Send routes a message through a mechanism
func (h *Handlers) Send(c *gin.Context) {
	var req mechanismRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	m, mok := types.ParseMechanism(req.Mechanism)
	if !mok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unknown mechanism " + req.Mechanism})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "message is required"})
		return
	}

	rec, err := h.coord.Send(m, req.Message)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"status": "error", "message": err.Error(), "operation": rec})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "operation": rec})
}

// Receive reads from a mechanism (meaningful for shared memory)
func (h *Handlers) Receive(c *gin.Context) {
	m, ok := h.paramMechanism(c)
	if !ok {
		return
	}
	rec, err := h.coord.Receive(m)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"status": "error", "message": err.Error(), "operation": rec})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "operation": rec})
}

// Command executes a generic command record
func (h *Handlers) Command(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	cmd, err := types.ParseCommand(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.coord.Execute(cmd))
}

// Logs returns up to count (default 100) most recent log ring entries
func (h *Handlers) Logs(c *gin.Context) {
	m, ok := h.paramMechanism(c)
	if !ok {
		return
	}

	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "count must be a positive integer"})
			return
		}
		count = n
	}

	entries, err := h.coord.Logs(m, count)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mechanism": m, "entries": entries, "count": len(entries)})
}

// Detail returns one mechanism's status plus its latest operation record
func (h *Handlers) Detail(c *gin.Context) {
	m, ok := h.paramMechanism(c)
	if !ok {
		return
	}
	detail, err := h.coord.Detail(m)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handlers) bindMechanism(c *gin.Context) (types.Mechanism, bool) {
	var req mechanismRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return "", false
	}
	m, ok := types.ParseMechanism(req.Mechanism)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unknown mechanism " + req.Mechanism})
		return "", false
	}
	return m, true
}

func (h *Handlers) paramMechanism(c *gin.Context) (types.Mechanism, bool) {
	raw := c.Param("mechanism")
	m, ok := types.ParseMechanism(raw)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "unknown mechanism " + raw})
		return "", false
	}
	return m, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ipc.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ipc.ErrMessageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ipc.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
