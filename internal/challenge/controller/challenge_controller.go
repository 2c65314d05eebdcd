package controller

import (
	"learnhub/internal/challenge/service"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// GenerateChallengeRequest is the body of POST /ai/generate-challenge.
type GenerateChallengeRequest struct {
	Topic      string   `json:"topic"`
	Difficulty string   `json:"difficulty"`
	Language   string   `json:"language"`
	ExcludeIDs []string `json:"excludeIds"`
}

// ChallengeController handles challenge generation.
type ChallengeController struct {
	generator *service.Generator
}

// NewChallengeController creates a new ChallengeController.
func NewChallengeController(generator *service.Generator) *ChallengeController {
	return &ChallengeController{generator: generator}
}

// Generate returns an AI-generated challenge, or a catalog one when generation fails.
func (h *ChallengeController) Generate(c *gin.Context) {
	var req GenerateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.generator.Generate(c.Request.Context(), service.GenerateInput{
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Language:   req.Language,
		ExcludeIDs: req.ExcludeIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
