package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/usecase"
)

// VerificationHandler exposes single-phrase and multi-phrase verification.
type VerificationHandler struct {
	verification *usecase.VerificationService
}

func NewVerificationHandler(verification *usecase.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

// RegisterRoutes wires the verification endpoints onto the group.
func (h *VerificationHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.Verify)
	group.POST("/sessions", h.StartSession)
	group.GET("/sessions/:id", h.GetSession)
	group.POST("/sessions/:id/phrases/:index", h.SubmitPhrase)
}

var verificationErrorCases = []ErrorCase{
	{Err: usecase.ErrLocked, Status: http.StatusLocked, Message: "identity temporarily locked"},
	{Err: usecase.ErrNotEnrolled, Status: http.StatusConflict, Message: "identity not enrolled"},
	{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
	{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "challenge not found"},
	{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
	{Err: usecase.ErrChallengeAlreadyUsed, Status: http.StatusConflict, Message: "challenge already used"},
	{Err: usecase.ErrChallengeMismatch, Status: http.StatusForbidden, Message: "challenge bound to a different identity"},
	{Err: usecase.ErrScorerFailure, Status: http.StatusBadGateway, Message: "scoring backend unavailable"},
}

// Verify runs the single-phrase cascade decision.
func (h *VerificationHandler) Verify(c *gin.Context) {
	if h.verification == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "verification handler not fully configured"))
		return
	}

	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid verification payload"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "audio must be non-empty base64"))
		return
	}

	attempt, err := h.verification.Verify(c.Request.Context(), req.IdentityID, req.ChallengeID, audio)
	if err != nil {
		RespondWithMappedError(c, err, verificationErrorCases,
			http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, newAttemptResponse(attempt))
}

// StartSession opens a multi-phrase session and issues its challenges.
func (h *VerificationHandler) StartSession(c *gin.Context) {
	if h.verification == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "verification handler not fully configured"))
		return
	}

	var req StartVerificationSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid session payload"))
		return
	}

	session, challenges, err := h.verification.StartSession(c.Request.Context(), req.IdentityID, req.PhraseCount)
	if err != nil {
		RespondWithMappedError(c, err, append(verificationErrorCases,
			ErrorCase{Err: usecase.ErrNoEligiblePhrases, Status: http.StatusConflict, Message: "not enough eligible phrases"},
		), http.StatusInternalServerError, "failed to start verification session")
		return
	}

	c.JSON(http.StatusCreated, newSessionResponse(*session, challenges))
}

// GetSession returns the live state of a multi-phrase session.
func (h *VerificationHandler) GetSession(c *gin.Context) {
	if h.verification == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "verification handler not fully configured"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	session, err := h.verification.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "verification session not found or expired"},
		}, http.StatusInternalServerError, "failed to load session")
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(*session, nil))
}

// SubmitPhrase scores one phrase of a multi-phrase session.
func (h *VerificationHandler) SubmitPhrase(c *gin.Context) {
	if h.verification == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "verification handler not fully configured"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "phrase index must be a non-negative integer"))
		return
	}

	var req SubmitPhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid submission payload"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "audio must be non-empty base64"))
		return
	}

	result, err := h.verification.SubmitPhrase(c.Request.Context(), sessionID, index, audio)
	if err != nil {
		RespondWithMappedError(c, err, append(verificationErrorCases,
			ErrorCase{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "verification session not found or expired"},
			ErrorCase{Err: usecase.ErrSessionFinished, Status: http.StatusConflict, Message: "session already decided"},
			ErrorCase{Err: usecase.ErrPhraseSubmitted, Status: http.StatusConflict, Message: "phrase already submitted"},
		), http.StatusInternalServerError, "failed to submit phrase")
		return
	}

	c.JSON(http.StatusOK, SubmitPhraseResponse{
		State:        string(result.Session.State),
		Submitted:    result.Session.SubmittedCount(),
		Final:        result.Final,
		Accepted:     result.Accepted,
		Reason:       string(result.Reason),
		AverageScore: result.AverageScore,
	})
}
