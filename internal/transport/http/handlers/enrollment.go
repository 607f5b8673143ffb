package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/vocalid/voiceauth/internal/infra/logger"
	"github.com/vocalid/voiceauth/internal/usecase"
)

// EnrollmentHandler exposes the enrollment session lifecycle.
type EnrollmentHandler struct {
	enrollment *usecase.EnrollmentService
}

func NewEnrollmentHandler(enrollment *usecase.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollment: enrollment}
}

// RegisterRoutes wires the enrollment endpoints onto the group.
func (h *EnrollmentHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("", h.Start)
	group.POST("/:id/samples", h.AddSample)
	group.POST("/:id/complete", h.Complete)
	group.DELETE("/:id", h.Abort)
}

// Start opens an enrollment session, creating a fresh identity when no id is
// supplied.
func (h *EnrollmentHandler) Start(c *gin.Context) {
	if h.enrollment == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "enrollment handler not fully configured"))
		return
	}

	var req EnrollmentStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid enrollment payload"))
		return
	}

	session, err := h.enrollment.Start(c.Request.Context(), usecase.StartInput{
		IdentityID:      strings.TrimSpace(req.IdentityID),
		ExternalRef:     strings.TrimSpace(req.ExternalRef),
		RequiredSamples: req.RequiredSamples,
		ForceOverwrite:  req.ForceOverwrite,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIdentityNotFound, Status: http.StatusNotFound, Message: "identity not found"},
			{Err: usecase.ErrAlreadyEnrolled, Status: http.StatusConflict, Message: "identity already enrolled"},
		}, http.StatusInternalServerError, "failed to start enrollment")
		return
	}

	appLogger.WithContext(c.Request.Context()).Info("enrollment session started",
		zap.String("session_id", session.ID),
		zap.String("identity_id", session.IdentityID),
		zap.String("external_ref", appLogger.MaskExternalRef(req.ExternalRef)))

	c.JSON(http.StatusCreated, EnrollmentSessionResponse{
		SessionID:       session.ID,
		IdentityID:      session.IdentityID,
		RequiredSamples: session.RequiredSamples,
		SamplesDone:     session.SamplesDone,
		ExpiresAt:       session.ExpiresAt,
	})
}

// AddSample submits one audio sample against a challenge.
func (h *EnrollmentHandler) AddSample(c *gin.Context) {
	if h.enrollment == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "enrollment handler not fully configured"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	var req AddSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid sample payload"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil || len(audio) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "audio must be non-empty base64"))
		return
	}

	result, err := h.enrollment.AddSample(c.Request.Context(), sessionID, req.ChallengeID, audio)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "enrollment session not found or expired"},
			{Err: usecase.ErrSessionFinished, Status: http.StatusConflict, Message: "enrollment session already finished"},
			{Err: usecase.ErrChallengeNotFound, Status: http.StatusNotFound, Message: "challenge not found"},
			{Err: usecase.ErrChallengeExpired, Status: http.StatusGone, Message: "challenge expired"},
			{Err: usecase.ErrChallengeAlreadyUsed, Status: http.StatusConflict, Message: "challenge already used"},
			{Err: usecase.ErrChallengeMismatch, Status: http.StatusForbidden, Message: "challenge bound to a different identity"},
			{Err: usecase.ErrLowQuality, Status: http.StatusUnprocessableEntity, Message: "sample quality below floor"},
			{Err: usecase.ErrScorerFailure, Status: http.StatusBadGateway, Message: "scoring backend unavailable"},
		}, http.StatusInternalServerError, "failed to add sample")
		return
	}

	c.JSON(http.StatusOK, AddSampleResponse{
		SamplesCompleted: result.SamplesCompleted,
		Complete:         result.Complete,
		SNRdB:            result.SNRdB,
		DurationMS:       result.Duration.Milliseconds(),
	})
}

// Complete aggregates the collected samples into the identity's voiceprint.
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	if h.enrollment == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "enrollment handler not fully configured"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	voiceprint, err := h.enrollment.Complete(c.Request.Context(), sessionID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "enrollment session not found or expired"},
			{Err: usecase.ErrIncompleteSession, Status: http.StatusConflict, Message: "session is missing required samples"},
		}, http.StatusInternalServerError, "failed to complete enrollment")
		return
	}

	c.JSON(http.StatusOK, VoiceprintResponse{
		VoiceprintID: voiceprint.ID,
		IdentityID:   voiceprint.IdentityID,
		SampleCount:  voiceprint.SampleCount,
		ModelVersion: voiceprint.ModelVersion,
		CreatedAt:    voiceprint.CreatedAt,
	})
}

// Abort discards an in-flight enrollment session.
func (h *EnrollmentHandler) Abort(c *gin.Context) {
	if h.enrollment == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "enrollment handler not fully configured"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	if err := h.enrollment.Abort(c.Request.Context(), sessionID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "enrollment session not found or expired"},
		}, http.StatusInternalServerError, "failed to abort enrollment")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "enrollment aborted"})
}
