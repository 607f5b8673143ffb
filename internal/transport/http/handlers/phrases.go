package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/usecase"
)

// PhraseHandler exposes phrase selection and pool administration endpoints.
type PhraseHandler struct {
	phrases *usecase.PhraseService
}

func NewPhraseHandler(phrases *usecase.PhraseService) *PhraseHandler {
	return &PhraseHandler{phrases: phrases}
}

// RegisterRoutes wires the public phrase endpoints onto the group.
func (h *PhraseHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/next", h.NextPhrases)
}

// RegisterAdminRoutes wires the pool administration endpoints onto the group.
func (h *PhraseHandler) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.POST("", h.CreatePhrase)
	group.DELETE("/:id", h.DeactivatePhrase)
}

// NextPhrases selects challenge phrases for an identity, skipping recently
// served ones.
func (h *PhraseHandler) NextPhrases(c *gin.Context) {
	if h.phrases == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "phrase handler not fully configured"))
		return
	}

	identityID := strings.TrimSpace(c.Query("identity_id"))
	if identityID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identity_id is required"))
		return
	}

	count := 1
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "count must be a positive integer"))
			return
		}
		count = parsed
	}

	difficulty := domain.PhraseDifficulty(c.DefaultQuery("difficulty", string(domain.PhraseDifficultyMedium)))
	if !difficulty.Valid() {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown difficulty"))
		return
	}

	phrases, err := h.phrases.NextPhrases(c.Request.Context(), identityID, count, difficulty)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoEligiblePhrases, Status: http.StatusConflict, Message: "not enough eligible phrases"},
		}, http.StatusInternalServerError, "failed to select phrases")
		return
	}

	resp := NextPhrasesResponse{Phrases: make([]PhraseSummary, 0, len(phrases))}
	for _, phrase := range phrases {
		resp.Phrases = append(resp.Phrases, PhraseSummary{
			ID:         phrase.ID,
			Text:       phrase.Text,
			Language:   phrase.Language,
			Difficulty: phrase.Difficulty,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// CreatePhrase adds an active phrase to the pool.
func (h *PhraseHandler) CreatePhrase(c *gin.Context) {
	if h.phrases == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "phrase handler not fully configured"))
		return
	}

	var req CreatePhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid phrase payload"))
		return
	}

	phrase, err := h.phrases.CreatePhrase(c.Request.Context(), usecase.PhraseInput{
		Text:       req.Text,
		Language:   req.Language,
		Difficulty: domain.PhraseDifficulty(req.Difficulty),
	})
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusBadRequest, "failed to create phrase")
		return
	}

	c.JSON(http.StatusCreated, PhraseSummary{
		ID:         phrase.ID,
		Text:       phrase.Text,
		Language:   phrase.Language,
		Difficulty: phrase.Difficulty,
	})
}

// DeactivatePhrase retires a phrase from selection without deleting it.
func (h *PhraseHandler) DeactivatePhrase(c *gin.Context) {
	if h.phrases == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "phrase handler not fully configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "phrase id is required"))
		return
	}

	if err := h.phrases.DeactivatePhrase(c.Request.Context(), id); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPhraseNotFound, Status: http.StatusNotFound, Message: "phrase not found"},
		}, http.StatusInternalServerError, "failed to deactivate phrase")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "phrase deactivated"})
}
