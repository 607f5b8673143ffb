package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/infra/config"
)

// PolicyHandler reads the active threshold policy and switches the named
// strategy at runtime, without a restart.
type PolicyHandler struct {
	policies *config.PolicyStore
	settings config.VerificationSettings
}

func NewPolicyHandler(policies *config.PolicyStore, settings config.VerificationSettings) *PolicyHandler {
	return &PolicyHandler{policies: policies, settings: settings}
}

// RegisterRoutes wires the policy endpoints onto the group.
func (h *PolicyHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.Current)
	group.PUT("", h.Update)
}

// Current reports the active strategy and its thresholds.
func (h *PolicyHandler) Current(c *gin.Context) {
	if h.policies == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "policy handler not fully configured"))
		return
	}

	c.JSON(http.StatusOK, policyResponseFrom(h.policies.Current()))
}

// Update switches the active strategy to another configured tuple. An unknown
// or invalid strategy is rejected and the running policy stays in effect.
func (h *PolicyHandler) Update(c *gin.Context) {
	if h.policies == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "policy handler not fully configured"))
		return
	}

	var req PolicyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid policy payload"))
		return
	}

	next := h.settings
	next.Strategy = strings.TrimSpace(req.Strategy)
	if err := h.policies.Reload(next); err != nil {
		c.JSON(http.StatusUnprocessableEntity, NewErrorResponse(c, "unknown or invalid threshold strategy"))
		return
	}

	c.JSON(http.StatusOK, policyResponseFrom(h.policies.Current()))
}

func policyResponseFrom(policy domain.ThresholdPolicy) PolicyResponse {
	return PolicyResponse{
		Strategy:         string(policy.Strategy),
		SpeakerThreshold: policy.Thresholds.Speaker,
		SpoofThreshold:   policy.Thresholds.Spoof,
		TextThreshold:    policy.Thresholds.Text,
		PhraseCount:      policy.Multi.PhraseCount,
		MultiThreshold:   policy.Multi.Threshold,
		SpoofCutoff:      policy.Multi.SpoofCutoff,
	}
}
