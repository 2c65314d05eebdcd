package controller

import (
	"encoding/json"
	"strconv"

	"learnhub/internal/activity/service"
	"learnhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LogRequest is the body of POST /activity/log.
type LogRequest struct {
	Username  string          `json:"username"`
	Action    string          `json:"action"`
	Status    string          `json:"status"`
	RequestID string          `json:"requestId"`
	Details   json.RawMessage `json:"details"`
}

// ActivityController handles activity endpoints.
type ActivityController struct {
	activity *service.ActivityService
}

func NewActivityController(activity *service.ActivityService) *ActivityController {
	return &ActivityController{activity: activity}
}

// Log records one activity.
func (h *ActivityController) Log(c *gin.Context) {
	var req LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.activity.Log(c.Request.Context(), service.LogInput{
		Username:  req.Username,
		Action:    req.Action,
		Status:    req.Status,
		RequestID: req.RequestID,
		Details:   req.Details,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Duplicate {
		response.SuccessWithMessage(c, "Duplicate activity suppressed", res)
		return
	}
	response.Success(c, res)
}

// History lists a learner's recent activity. ?limit= defaults to 50.
func (h *ActivityController) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}
	items, err := h.activity.History(c.Request.Context(), c.Param("username"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"username": c.Param("username"), "items": items})
}
