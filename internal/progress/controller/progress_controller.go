package controller

import (
	"learnhub/internal/progress/model"
	"learnhub/internal/progress/service"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AwardRequest is the body of POST /progress/award.
type AwardRequest struct {
	Username       string `json:"username"`
	ChallengeID    string `json:"challengeId"`
	ChallengeTitle string `json:"challengeTitle"`
	Difficulty     string `json:"difficulty"`
	Language       string `json:"language"`
	Passed         bool   `json:"passed"`
}

// ProgressController handles progress endpoints.
type ProgressController struct {
	progress *service.ProgressService
}

// NewProgressController creates a new ProgressController.
func NewProgressController(progress *service.ProgressService) *ProgressController {
	return &ProgressController{progress: progress}
}

// Get returns a learner's progress.
func (h *ProgressController) Get(c *gin.Context) {
	p, err := h.progress.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}

// Award credits a passed challenge.
func (h *ProgressController) Award(c *gin.Context) {
	var req AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	if !req.Passed {
		if _, err := service.NormalizeUsername(req.Username); err != nil {
			response.Error(c, err)
			return
		}
		response.SuccessWithMessage(c, "No award because not passed", &model.AwardResult{BadgesAwarded: []string{}})
		return
	}
	res, err := h.progress.Award(c.Request.Context(), service.AwardInput{
		Username:       req.Username,
		ChallengeID:    req.ChallengeID,
		ChallengeTitle: req.ChallengeTitle,
		Difficulty:     req.Difficulty,
		Language:       req.Language,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.AlreadyCompleted {
		response.SuccessWithMessage(c, "Already completed; no additional XP", res)
		return
	}
	response.Success(c, res)
}
