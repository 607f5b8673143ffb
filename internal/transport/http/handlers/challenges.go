package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/usecase"
)

// ChallengeHandler exposes challenge issuance.
type ChallengeHandler struct {
	challenges *usecase.ChallengeService
}

func NewChallengeHandler(challenges *usecase.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

// RegisterRoutes wires the challenge endpoints onto the group.
func (h *ChallengeHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.Issue)
}

// Issue creates a single-use challenge for a phrase, optionally bound to an
// identity. Consumption happens implicitly inside enrollment and
// verification submissions.
func (h *ChallengeHandler) Issue(c *gin.Context) {
	if h.challenges == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "challenge handler not fully configured"))
		return
	}

	var req ChallengeIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid challenge payload"))
		return
	}

	challenge, err := h.challenges.Issue(c.Request.Context(), usecase.IssueInput{
		IdentityID: req.IdentityID,
		PhraseID:   req.PhraseID,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidTTL, Status: http.StatusBadRequest, Message: "ttl must be positive"},
			{Err: usecase.ErrPhraseNotFound, Status: http.StatusNotFound, Message: "phrase not found"},
		}, http.StatusInternalServerError, "failed to issue challenge")
		return
	}

	c.JSON(http.StatusCreated, newChallengeResponse(*challenge))
}
