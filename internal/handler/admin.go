package handler

import (
	"net/http"

	"github.com/efuayankey/aimes-sub001/internal/sweeper"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	sweeper *sweeper.Sweeper
}

func NewAdminHandler(s *sweeper.Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: s}
}

// Sweep runs one lease sweep for HTTP schedulers. Per-request failures are
// reported next to the counts; the requests that could be reclaimed were.
func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.sweeper.RunOnce(c.Request.Context())
	body := gin.H{
		"scanned":     res.Scanned,
		"reclaimed":   res.Reclaimed,
		"failed":      res.Failed,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if err != nil {
		_ = c.Error(err)
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}
