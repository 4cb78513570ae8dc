package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-access-backend/internal/coordinator"
)

type generateRequest struct {
	LockerID        int64 `json:"lockerId" validate:"required,gt=0"`
	DurationSeconds int   `json:"durationSeconds" validate:"gte=0"`
}

// GenerateToken handles POST /api/qr/generate.
func (h *Handler) GenerateToken(c *gin.Context) {
	var req generateRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_identity", "msg": userIDHeader + " header is required"})
		return
	}

	p, err := h.coord.IssueToken(c.Request.Context(), userID, req.LockerID, req.DurationSeconds)
	if err != nil {
		log.Printf("token generation for locker %d failed: %v", req.LockerID, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokenId":         p.ID,
		"validUntil":      p.ValidUntil,
		"durationSeconds": p.DurationSeconds,
	})
}

type scanRequest struct {
	TokenID string `json:"tokenId" validate:"required"`
}

// ScanToken handles POST /api/qr/scan: it consumes the token and, when
// valid, runs the full unlock through the coordinator. A reused or expired
// token answers 400.
func (h *Handler) ScanToken(c *gin.Context) {
	var req scanRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	// The locker is read from the consumed payload, so the scan body only
	// carries the token itself. Peek first for the locker id, then let the
	// coordinator do the one atomic consume.
	p, err := h.coord.PeekToken(c.Request.Context(), req.TokenID)
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.coord.Unlock(c.Request.Context(), coordinator.UnlockRequest{
		LockerID: p.LockerID,
		TokenID:  req.TokenID,
	})
	if err != nil {
		log.Printf("token scan for locker %d failed: %v", p.LockerID, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"payload":     res.Token,
		"transaction": res,
	})
}
