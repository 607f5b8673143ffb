package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
	"github.com/vocalid/voiceauth/internal/usecase"
)

const defaultAttemptPageSize = 50

// IdentityHandler exposes lock-state and attempt ledger reads.
type IdentityHandler struct {
	identities port.IdentityRepository
	attempts   port.AttemptRepository
	lockout    *usecase.LockoutService
}

func NewIdentityHandler(identities port.IdentityRepository, attempts port.AttemptRepository, lockout *usecase.LockoutService) *IdentityHandler {
	return &IdentityHandler{identities: identities, attempts: attempts, lockout: lockout}
}

// RegisterRoutes wires the identity endpoints onto the group.
func (h *IdentityHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/:id/lock", h.LockState)
	group.GET("/:id/attempts", h.ListAttempts)
}

// LockState reports whether an identity is currently locked out.
func (h *IdentityHandler) LockState(c *gin.Context) {
	if h.lockout == nil || h.identities == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identity id is required"))
		return
	}

	if _, err := h.identities.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "identity not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load identity"))
		return
	}

	locked, until, err := h.lockout.IsLocked(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to read lock state"))
		return
	}

	resp := LockStateResponse{IdentityID: id, Locked: locked}
	if locked {
		resp.LockedUntil = &until
	}

	c.JSON(http.StatusOK, resp)
}

// ListAttempts returns the most recent ledger rows for an identity.
func (h *IdentityHandler) ListAttempts(c *gin.Context) {
	if h.attempts == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "identity handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identity id is required"))
		return
	}

	limit := defaultAttemptPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	attempts, err := h.attempts.ListByIdentity(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list attempts"))
		return
	}

	resp := AttemptListResponse{Attempts: make([]AttemptRecordPayload, 0, len(attempts))}
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, AttemptRecordPayload{
			AttemptID:   attempt.ID,
			ChallengeID: attempt.ChallengeID,
			SessionID:   attempt.SessionID,
			Decided:     attempt.Decided,
			Accepted:    attempt.Accepted,
			Reason:      string(attempt.Reason),
			Scores:      newSignalScoresPayload(attempt.Scores),
			CreatedAt:   attempt.CreatedAt,
			DecidedAt:   attempt.DecidedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}
