package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"locker-access-backend/internal/model"
	"locker-access-backend/internal/status"
)

func paramInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

// CabinetResponse represents the API response for a single cabinet.
type CabinetResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Building     string `json:"building"`
	Floor        int    `json:"floor"`
	TotalLockers int64  `json:"totalLockers"`
}

// GetCabinets handles the GET /api/cabinets request.
func (h *Handler) GetCabinets(c *gin.Context) {
	var cabinets []model.Cabinet
	if err := h.db.Find(&cabinets).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve cabinets"})
		return
	}

	type aggRow struct {
		CabinetID    int64
		TotalLockers int64
	}
	var aggs []aggRow
	if err := h.db.
		Model(&model.Locker{}).
		Select("cabinet_id as cabinet_id, COUNT(*) as total_lockers").
		Group("cabinet_id").
		Scan(&aggs).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate lockers"})
		return
	}

	aggMap := make(map[int64]aggRow, len(aggs))
	for _, a := range aggs {
		aggMap[a.CabinetID] = a
	}

	response := make([]CabinetResponse, 0, len(cabinets))
	for _, cab := range cabinets {
		response = append(response, CabinetResponse{
			ID:           cab.ID,
			Name:         cab.Name,
			Building:     cab.Building,
			Floor:        cab.Floor,
			TotalLockers: aggMap[cab.ID].TotalLockers,
		})
	}
	c.JSON(http.StatusOK, response)
}

// lockerStatusResponse is the flattened structure for the locker listing.
type lockerStatusResponse struct {
	model.Locker
	State         status.State `json:"state"`
	Online        bool         `json:"online"`
	ActorUserID   string       `json:"actorUserId,omitempty"`
	TransactionID string       `json:"transactionId,omitempty"`
	ObservedAt    *time.Time   `json:"observedAt,omitempty"`
}

// GetCabinetLockers handles GET /api/cabinets/:cabinet_id/lockers. Each
// locker is merged with its cached status; a cache miss reports state
// "available" and online=false rather than an error.
func (h *Handler) GetCabinetLockers(c *gin.Context) {
	cabinetID, ok := paramInt64(c, "cabinet_id")
	if !ok {
		return
	}

	var lockers []model.Locker
	if err := h.db.Where("cabinet_id = ?", cabinetID).Find(&lockers).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve lockers"})
		return
	}

	ids := make([]int64, len(lockers))
	for i, l := range lockers {
		ids[i] = l.ID
	}
	statuses, err := h.cache.GetMultiple(c.Request.Context(), ids)
	if err != nil {
		// Degrade to "unknown" rather than failing the listing.
		statuses = map[int64]status.LockerStatus{}
	}

	response := make([]lockerStatusResponse, 0, len(lockers))
	for _, locker := range lockers {
		row := lockerStatusResponse{
			Locker: locker,
			State:  status.StateAvailable,
		}
		if s, ok := statuses[locker.ID]; ok {
			ts := s.Timestamp
			row.State = s.State
			row.Online = status.IsOnline(s, h.onlineThreshold)
			row.ActorUserID = s.ActorUserID
			row.TransactionID = s.TransactionID
			row.ObservedAt = &ts
		}
		response = append(response, row)
	}
	c.JSON(http.StatusOK, response)
}
