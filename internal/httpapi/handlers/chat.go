package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/common"
)

type chatReq struct {
	Text string `json:"text"`
}

// PostChat handles one chat turn. Upstream classification/intent/program
// failures never fail the request; only the reply path does.
func (h *Handler) PostChat(c *gin.Context) {
	humanID, err := strconv.ParseUint(c.Param("humanId"), 10, 64)
	if err != nil || humanID == 0 {
		common.BadRequest(c, "invalid humanId")
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		common.BadRequest(c, "text is required")
		return
	}

	reply, meta, err := h.Chat.HandleMessage(c.Request.Context(), humanID, req.Text)
	if err != nil {
		h.Log.Error("chat turn failed", zap.Uint64("human_id", humanID), zap.Error(err))
		common.Internal(c, "failed to generate reply")
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply, "meta": meta})
}
