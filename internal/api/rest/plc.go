package rest

import (
	"net/http"

	"github.com/KevinKickass/FountainCore/internal/script"
	"github.com/KevinKickass/FountainCore/internal/types"
	"github.com/gin-gonic/gin"
)

// POST /api/v1/plc/commands
func (s *Server) queuePLCCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PLC_400", "Invalid request body", err.Error()))
		return
	}

	cmd, err := script.ParseCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PLC_400", "Invalid command", err.Error()))
		return
	}

	client := s.lm.PLC()
	if !client.Queue(cmd.String()) {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("PLC_503", "PLC queue busy, command dropped", cmd.String()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command queued",
		"command": cmd.String(),
		"state":   client.State(),
	})
}

// GET /api/v1/plc/status
func (s *Server) getPLCStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.PLC().Status())
}
