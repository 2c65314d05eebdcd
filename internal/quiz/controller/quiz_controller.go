package controller

import (
	"learnhub/internal/quiz/service"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// GenerateRequest is the body of POST /quiz/generate.
type GenerateRequest struct {
	Language   string `json:"language"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// SubmitRequest is the body of POST /quiz/submit.
type SubmitRequest struct {
	QuestionID  string `json:"questionId"`
	AnswerIndex *int   `json:"answerIndex"`
}

// FinishRequest is the body of POST /quiz/finish.
type FinishRequest struct {
	Username string `json:"username"`
	Score    *int   `json:"score"`
	Total    *int   `json:"total"`
	Language string `json:"language"`
}

// QuizController handles quiz endpoints.
type QuizController struct {
	quiz *service.QuizService
}

func NewQuizController(quiz *service.QuizService) *QuizController {
	return &QuizController{quiz: quiz}
}

func (h *QuizController) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	q, err := h.quiz.Generate(c.Request.Context(), service.GenerateInput{
		Language:   req.Language,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

func (h *QuizController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AnswerIndex == nil {
		response.BadRequest(c, "questionId and answerIndex are required")
		return
	}
	res, err := h.quiz.Submit(c.Request.Context(), req.QuestionID, *req.AnswerIndex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (h *QuizController) Finish(c *gin.Context) {
	var req FinishRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil || req.Total == nil {
		response.BadRequest(c, "Invalid score data")
		return
	}
	res, err := h.quiz.Finish(c.Request.Context(), service.FinishInput{
		Username: req.Username,
		Score:    *req.Score,
		Total:    *req.Total,
		Language: req.Language,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
