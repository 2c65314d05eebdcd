package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Actions.
const (
	ActionCodeReview         = "code_review"
	ActionQuizSession        = "quiz_session"
	ActionFileUpload         = "file_upload"
	ActionChallengeCompleted = "challenge_completed"
	ActionGeneral            = "general"
)

// Statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const ActivityEventLogged = "activity.logged"

// Activity is one entry of a learner's activity history.
type Activity struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Action    string          `json:"action"`
	Status    string          `json:"status"`
	RequestID string          `json:"requestId,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ActivityEvent is the payload published to the activity topic.
type ActivityEvent struct {
	EventType string   `json:"event_type"`
	Activity  Activity `json:"activity"`
}

var actionAliases = map[string]struct{ action, status string }{
	"code_review_requested": {ActionCodeReview, StatusInProgress},
	"code_review_started":   {ActionCodeReview, StatusInProgress},
	"code_review_completed": {ActionCodeReview, StatusCompleted},
}

// NormalizeAction maps an action name and its aliases to a canonical action.
// The returned status is the implied status of an alias, empty otherwise.
func NormalizeAction(action string) (string, string, bool) {
	a := strings.ToLower(strings.TrimSpace(action))
	if a == "" {
		return ActionGeneral, "", true
	}
	if alias, ok := actionAliases[a]; ok {
		return alias.action, alias.status, true
	}
	switch a {
	case ActionCodeReview, ActionQuizSession, ActionFileUpload, ActionChallengeCompleted, ActionGeneral:
		return a, "", true
	}
	return "", "", false
}

// NormalizeStatus validates a status. Empty maps to fallback.
func NormalizeStatus(status, fallback string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return fallback, true
	}
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return s, true
	}
	return "", false
}
