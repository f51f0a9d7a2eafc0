package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/FountainCore/internal/script"
	"github.com/KevinKickass/FountainCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fixtureView struct {
	types.FixtureDefinition
	Color types.RGBW `json:"color"`
}

// GET /api/v1/fixtures
func (s *Server) listFixtures(c *gin.Context) {
	snap := s.lm.Dispatcher().Snapshot()
	defs := s.lm.Directory().Fixtures()

	out := make([]fixtureView, 0, len(defs))
	for _, def := range defs {
		out = append(out, fixtureView{FixtureDefinition: def, Color: snap.Colors[def.ID]})
	}

	c.JSON(http.StatusOK, gin.H{
		"fixtures": out,
		"count":    len(out),
	})
}

// GET /api/v1/fixtures/:id/color
func (s *Server) getFixtureColor(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("FIXTURE_400", "Invalid fixture id", err.Error()))
		return
	}

	def, ok := s.lm.Directory().Fixture(id)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("FIXTURE_404", "Fixture not found", id))
		return
	}

	color := s.lm.Dispatcher().Snapshot().Colors[id]
	c.JSON(http.StatusOK, gin.H{
		"fixture":     def.ID,
		"dmx_channel": def.DMXChannel,
		"format":      def.Format,
		"color":       color,
		"hex":         types.RGB{R: color.R, G: color.G, B: color.B}.Hex(),
	})
}

// POST /api/v1/fixtures/fade
func (s *Server) startFade(c *gin.Context) {
	var req struct {
		Address    int    `json:"address" binding:"required,min=1,max=999"`
		Color      string `json:"color" binding:"required"`
		DurationMs int64  `json:"duration_ms" binding:"min=0"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("FIXTURE_400", "Invalid request body", err.Error()))
		return
	}

	target, err := types.ParseHexColor(req.Color)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("FIXTURE_400", "Invalid color", err.Error()))
		return
	}

	if _, ok := s.lm.Directory().Mapping(req.Address); !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("FIXTURE_404", "No light mapping for address", req.Address))
		return
	}

	n, err := s.lm.Dispatcher().StartFade(c.Request.Context(), req.Address, target, time.Duration(req.DurationMs)*time.Millisecond)
	if err != nil {
		s.dispatchError(c, "FIXTURE", err)
		return
	}

	s.logger.Info("Fade started",
		zap.Int("address", req.Address),
		zap.String("color", target.Hex()),
		zap.Int64("duration_ms", req.DurationMs),
		zap.Int("fixtures", n))

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Fade started",
		"fixtures": n,
	})
}

// POST /api/v1/commands
func (s *Server) executeCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid request body", err.Error()))
		return
	}

	cmd, err := script.ParseCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid command", err.Error()))
		return
	}

	res, err := s.lm.Dispatcher().ExecuteCommand(c.Request.Context(), cmd)
	if err != nil {
		s.dispatchError(c, "COMMAND", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command": cmd.String(),
		"result":  res,
	})
}
