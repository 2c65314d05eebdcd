package controller

import (
	harnessController "learnhub/internal/harness/controller"
	"learnhub/internal/learning/service"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RunTestsRequest is the body of POST /learning/run-tests.
type RunTestsRequest struct {
	Username    string `json:"username"`
	ChallengeID string `json:"challengeId"`
	Language    string `json:"language"`
	Code        string `json:"code"`
}

// LearningController handles the guided learning endpoints.
type LearningController struct {
	learning *service.LearningService
}

func NewLearningController(learning *service.LearningService) *LearningController {
	return &LearningController{learning: learning}
}

// Challenge returns the next uncompleted catalog challenge with expected values hidden.
func (h *LearningController) Challenge(c *gin.Context) {
	res, err := h.learning.Next(c.Request.Context(), service.NextInput{
		Username:   c.Query("username"),
		Topic:      c.Query("topic"),
		Difficulty: c.Query("difficulty"),
		Language:   c.Query("language"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.CompletedAll {
		response.SuccessWithMessage(c, "No more challenges available for this topic/difficulty", res)
		return
	}
	response.Success(c, res)
}

// RunTests grades a submission against the catalog cases.
func (h *LearningController) RunTests(c *gin.Context) {
	var req RunTestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "challengeId, username, and code are required")
		return
	}
	res, err := h.learning.RunTests(c.Request.Context(), service.RunInput{
		Username:    req.Username,
		ChallengeID: req.ChallengeID,
		Language:    req.Language,
		Code:        req.Code,
	})
	if err != nil {
		harnessController.RespondRunError(c, err)
		return
	}
	response.Success(c, res)
}
