package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"locker-access-backend/internal/coordinator"
)

type unlockRequest struct {
	LockerID        int64  `json:"lockerId" validate:"required,gt=0"`
	TokenID         string `json:"tokenId"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0"`
	Force           bool   `json:"force"`
}

// Unlock handles POST /api/lockers/unlock.
func (h *Handler) Unlock(c *gin.Context) {
	var req unlockRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	userID := c.GetHeader(userIDHeader)
	if req.TokenID == "" && userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_identity", "msg": "tokenId or " + userIDHeader + " header is required"})
		return
	}

	res, err := h.coord.Unlock(c.Request.Context(), coordinator.UnlockRequest{
		LockerID:        req.LockerID,
		UserID:          userID,
		TokenID:         req.TokenID,
		DurationSeconds: req.DurationSeconds,
		Force:           req.Force,
	})
	if err != nil {
		log.Printf("unlock of locker %d failed: %v", req.LockerID, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type lockRequest struct {
	LockerID int64  `json:"lockerId" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"max=512"`
	Force    bool   `json:"force"`
}

// Lock handles POST /api/lockers/lock.
func (h *Handler) Lock(c *gin.Context) {
	var req lockRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	userID := c.GetHeader(userIDHeader)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_identity", "msg": userIDHeader + " header is required"})
		return
	}

	res, err := h.coord.Lock(c.Request.Context(), coordinator.LockRequest{
		LockerID: req.LockerID,
		UserID:   userID,
		Reason:   req.Reason,
		Force:    req.Force,
	})
	if err != nil {
		log.Printf("lock of locker %d failed: %v", req.LockerID, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetLockerTransactions handles GET /api/lockers/:locker_id/transactions,
// the audit view over the ledger.
func (h *Handler) GetLockerTransactions(c *gin.Context) {
	lockerID, ok := paramInt64(c, "locker_id")
	if !ok {
		return
	}

	txs, err := h.ledger.ListForLocker(c.Request.Context(), lockerID, 50)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, txs)
}
