package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"locker-access-backend/internal/coordinator"
	"locker-access-backend/internal/hardware"
	"locker-access-backend/internal/ledger"
	"locker-access-backend/internal/status"
)

// userIDHeader carries the caller identity. Authentication itself is done
// upstream; this service trusts the gateway-injected header.
const userIDHeader = "X-User-ID"

// Handler holds shared dependencies for API handlers.
type Handler struct {
	coord           *coordinator.Coordinator
	db              *gorm.DB
	cache           status.Cache
	ledger          ledger.Ledger
	webpush         *webpush.Options
	validate        *validatorv10.Validate
	onlineThreshold time.Duration
}

// NewHandler creates a new API handler.
func NewHandler(coord *coordinator.Coordinator, db *gorm.DB, cache status.Cache, ldg ledger.Ledger, webpushOptions *webpush.Options, onlineThreshold time.Duration) *Handler {
	return &Handler{
		coord:           coord,
		db:              db,
		cache:           cache,
		ledger:          ldg,
		webpush:         webpushOptions,
		validate:        validatorv10.New(),
		onlineThreshold: onlineThreshold,
	}
}

// bindAndValidate binds the JSON body into out and runs validation. On
// failure it writes a 400 response and returns false so the handler can
// short-circuit.
func (h *Handler) bindAndValidate(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		fields := map[string]string{}
		var ve validatorv10.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": fields})
		return false
	}
	return true
}

// writeError maps a coordinator or hardware error onto the public status
// code taxonomy. Unexpected errors come back as a generic 500 so internals
// never leak.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, coordinator.ErrLockerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "locker_not_found"})
	case errors.Is(err, coordinator.ErrLockerUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "locker_unavailable"})
	case errors.Is(err, coordinator.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, coordinator.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, coordinator.ErrTokenInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_invalid"})
	case errors.Is(err, coordinator.ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_duration"})
	case errors.Is(err, hardware.ErrTimeout):
		// Distinguished from communication errors so operators can tell
		// "locker unreachable" apart from "locker rejected command".
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hardware_timeout"})
	case errors.Is(err, hardware.ErrCommunication):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hardware_error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
