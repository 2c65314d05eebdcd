package model

import "time"

const OptionCount = 4

// Question is a stored multiple-choice question including its answer.
type Question struct {
	ID          string    `json:"id"`
	Language    string    `json:"language"`
	Topic       string    `json:"topic,omitempty"`
	Difficulty  string    `json:"difficulty"`
	Question    string    `json:"question"`
	Code        string    `json:"code"`
	Options     []string  `json:"options"`
	AnswerIndex int       `json:"answerIndex"`
	Explanation string    `json:"explanation"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublicQuestion is what a learner sees before answering.
type PublicQuestion struct {
	ID         string   `json:"id"`
	Language   string   `json:"language"`
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty"`
	Question   string   `json:"question"`
	Code       string   `json:"code"`
	Options    []string `json:"options"`
}

// Public strips the answer and explanation.
func (q *Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:         q.ID,
		Language:   q.Language,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		Question:   q.Question,
		Code:       q.Code,
		Options:    append([]string(nil), q.Options...),
	}
}

// SubmitResult is the feedback for one answer.
type SubmitResult struct {
	Correct     bool   `json:"correct"`
	AnswerIndex int    `json:"answerIndex"`
	Explanation string `json:"explanation"`
}

// FinishResult reports the reward for a finished quiz.
type FinishResult struct {
	XPGained int64 `json:"xpGained"`
	TotalXP  int64 `json:"totalXp"`
}
