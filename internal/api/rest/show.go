package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/KevinKickass/FountainCore/internal/show"
	"github.com/KevinKickass/FountainCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type showStatus struct {
	State      show.PlaybackState `json:"state"`
	ElapsedMs  uint64             `json:"elapsed_ms"`
	DurationMs uint64             `json:"duration_ms"`
	Lines      int                `json:"lines"`
	Legacy     bool               `json:"legacy"`
	Header     string             `json:"header,omitempty"`
	Snapshot   *show.Snapshot     `json:"snapshot"`
}

func (s *Server) showStatus() showStatus {
	clock := s.lm.Clock()
	d := s.lm.Dispatcher()
	sc := d.Script()
	return showStatus{
		State:      clock.State(),
		ElapsedMs:  clock.CurrentElapsedMillis(),
		DurationMs: sc.TotalDurationMs(),
		Lines:      sc.Len(),
		Legacy:     sc.Legacy,
		Header:     sc.Header,
		Snapshot:   d.Snapshot(),
	}
}

// GET /api/v1/show/status
func (s *Server) getShowStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.showStatus())
}

// POST /api/v1/show/play
func (s *Server) play(c *gin.Context) {
	s.lm.Clock().Play()
	s.logger.Info("Show playing", zap.Uint64("elapsed_ms", s.lm.Clock().CurrentElapsedMillis()))
	c.JSON(http.StatusOK, s.showStatus())
}

// POST /api/v1/show/pause
func (s *Server) pause(c *gin.Context) {
	s.lm.Clock().Pause()
	s.logger.Info("Show paused", zap.Uint64("elapsed_ms", s.lm.Clock().CurrentElapsedMillis()))
	c.JSON(http.StatusOK, s.showStatus())
}

// POST /api/v1/show/stop
func (s *Server) stop(c *gin.Context) {
	s.lm.Clock().Stop()
	if err := s.lm.Dispatcher().Blackout(c.Request.Context()); err != nil {
		s.dispatchError(c, "SHOW", err)
		return
	}
	s.logger.Info("Show stopped")
	c.JSON(http.StatusOK, s.showStatus())
}

// POST /api/v1/show/seek
func (s *Server) seek(c *gin.Context) {
	var req struct {
		PositionMs *int64 `json:"position_ms" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SHOW_400", "Invalid request body", err.Error()))
		return
	}
	if *req.PositionMs < 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SHOW_400", "position_ms must not be negative", *req.PositionMs))
		return
	}

	s.lm.Clock().Seek(time.Duration(*req.PositionMs) * time.Millisecond)
	s.logger.Info("Show seek", zap.Int64("position_ms", *req.PositionMs))
	c.JSON(http.StatusOK, s.showStatus())
}

// POST /api/v1/show/blackout
func (s *Server) blackout(c *gin.Context) {
	if err := s.lm.Dispatcher().Blackout(c.Request.Context()); err != nil {
		s.dispatchError(c, "SHOW", err)
		return
	}
	s.logger.Info("Blackout")
	c.JSON(http.StatusOK, gin.H{"message": "Blackout applied"})
}

// dispatchError maps a failed control request on the dispatch loop.
func (s *Server) dispatchError(c *gin.Context, area string, err error) {
	if errors.Is(err, show.ErrNotRunning) {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(area+"_503", "Dispatcher not running", err.Error()))
		return
	}
	s.logger.Error("Dispatcher request failed", zap.String("area", area), zap.Error(err))
	c.JSON(http.StatusInternalServerError, types.NewErrorResponse(area+"_500", "Dispatcher request failed", err.Error()))
}
