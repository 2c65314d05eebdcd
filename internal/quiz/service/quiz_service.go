package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	activityModel "learnhub/internal/activity/model"
	activity "learnhub/internal/activity/service"
	challenge "learnhub/internal/challenge/model"
	"learnhub/internal/llm"
	progress "learnhub/internal/progress/model"
	"learnhub/internal/quiz/model"
	"learnhub/internal/quiz/store"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQuestionTTL = time.Hour

	quizSystemPrompt = "Return only VALID JSON. No markdown."
	quizTemperature  = 0.7
	quizMaxTokens    = 900

	xpPerCorrect   = 2
	maxQuizXP      = 20
	maxLanguageLen = 32
)

// XPAdder credits quiz rewards.
type XPAdder interface {
	AddXP(ctx context.Context, username string, amount int64, badges ...string) (*progress.Progress, error)
}

// ActivityLogger records quiz sessions.
type ActivityLogger interface {
	Log(ctx context.Context, in activity.LogInput) (*activity.LogResult, error)
}

// GenerateInput selects the question to generate.
type GenerateInput struct {
	Language   string
	Topic      string
	Difficulty string
}

// FinishInput is a finished quiz session.
type FinishInput struct {
	Username string
	Score    int
	Total    int
	Language string
}

// Config wires the quiz service. Activity may be nil.
type Config struct {
	LLM         llm.Completer
	Store       store.QuestionStore
	Progress    XPAdder
	Activity    ActivityLogger
	QuestionTTL time.Duration
}

// QuizService generates and grades single multiple-choice questions.
type QuizService struct {
	llm      llm.Completer
	store    store.QuestionStore
	progress XPAdder
	activity ActivityLogger
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

func NewQuizService(cfg Config) *QuizService {
	ttl := cfg.QuestionTTL
	if ttl <= 0 {
		ttl = DefaultQuestionTTL
	}
	return &QuizService{
		llm:      cfg.LLM,
		store:    cfg.Store,
		progress: cfg.Progress,
		activity: cfg.Activity,
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Generate asks the LLM for one question, stores it with its answer and
// returns it without the answer.
func (s *QuizService) Generate(ctx context.Context, in GenerateInput) (*model.PublicQuestion, error) {
	language, err := normalizeLanguage(in.Language)
	if err != nil {
		return nil, err
	}
	difficulty, ok := challenge.NormalizeDifficulty(in.Difficulty)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidDifficulty, "Invalid difficulty: %s", in.Difficulty)
	}
	if difficulty == "" {
		difficulty = challenge.DifficultyEasy
	}
	if s.llm == nil || !s.llm.Enabled() {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("Quiz generation is not configured")
	}
	topic := strings.TrimSpace(in.Topic)

	reply, err := s.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: quizSystemPrompt},
		{Role: "user", Content: buildQuizPrompt(language, topic, difficulty)},
	}, llm.Options{Temperature: quizTemperature, MaxTokens: quizMaxTokens})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.QuestionGenerationFailed, "generate question failed")
	}
	q, err := ParseQuestion(reply)
	if err != nil {
		return nil, err
	}
	q.ID = s.newID()
	q.Language = language
	q.Topic = topic
	q.Difficulty = difficulty
	q.CreatedAt = s.now().UTC()
	if err := s.store.Put(ctx, q, s.ttl); err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "store question failed")
	}
	pub := q.Public()
	return &pub, nil
}

// Submit grades one answer.
func (s *QuizService) Submit(ctx context.Context, questionID string, answerIndex int) (*model.SubmitResult, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return nil, appErr.ValidationError("questionId", "required")
	}
	if answerIndex < 0 || answerIndex >= model.OptionCount {
		return nil, appErr.Newf(appErr.InvalidAnswerIndex, "answerIndex must be between 0 and %d", model.OptionCount-1)
	}
	q, err := s.store.Get(ctx, questionID)
	if errors.Is(err, store.ErrQuestionNotFound) {
		return nil, appErr.New(appErr.QuestionNotFound).WithDetail("questionId", questionID)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "load question failed")
	}
	return &model.SubmitResult{
		Correct:     answerIndex == q.AnswerIndex,
		AnswerIndex: q.AnswerIndex,
		Explanation: q.Explanation,
	}, nil
}

// Finish credits min(20, 2*score) XP and records the session.
func (s *QuizService) Finish(ctx context.Context, in FinishInput) (*model.FinishResult, error) {
	if in.Score < 0 || in.Total < 0 || in.Score > in.Total {
		return nil, appErr.ValidationError("score", "must be between 0 and total")
	}
	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "programming"
	}
	xp := int64(min(maxQuizXP, in.Score*xpPerCorrect))
	p, err := s.progress.AddXP(ctx, in.Username, xp)
	if err != nil {
		return nil, err
	}
	if xp > 0 && s.activity != nil {
		details, _ := json.Marshal(map[string]any{
			"description": fmt.Sprintf("Completed %s quiz: %d/%d", language, in.Score, in.Total),
			"xp":          xp,
			"metadata":    map[string]any{"score": in.Score, "total": in.Total, "language": language},
		})
		if _, err := s.activity.Log(ctx, activity.LogInput{
			Username: p.Username,
			Action:   activityModel.ActionQuizSession,
			Status:   activityModel.StatusCompleted,
			Details:  details,
		}); err != nil {
			logger.Warn(ctx, "log quiz activity failed", zap.String("username", p.Username), zap.Error(err))
		}
	}
	return &model.FinishResult{XPGained: xp, TotalXP: p.XP}, nil
}

// ParseQuestion extracts and validates a question from a model reply.
func ParseQuestion(reply string) (*model.Question, error) {
	var q model.Question
	if err := llm.Decode(reply, &q); err != nil {
		return nil, appErr.Wrapf(err, appErr.QuestionInvalid, "model returned invalid JSON")
	}
	q.Question = strings.TrimSpace(q.Question)
	switch {
	case q.Question == "":
		return nil, appErr.New(appErr.QuestionInvalid).WithMessage("question text is missing")
	case len(q.Options) != model.OptionCount:
		return nil, appErr.Newf(appErr.QuestionInvalid, "expected %d options, got %d", model.OptionCount, len(q.Options))
	case q.AnswerIndex < 0 || q.AnswerIndex >= model.OptionCount:
		return nil, appErr.Newf(appErr.QuestionInvalid, "answerIndex %d out of range", q.AnswerIndex)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return nil, appErr.Newf(appErr.QuestionInvalid, "option %d is empty", i)
		}
	}
	return &q, nil
}

func buildQuizPrompt(language, topic, difficulty string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate ONE multiple-choice programming question about %s.\n", language)
	if topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", topic)
	}
	fmt.Fprintf(&b, "Difficulty: %s\n\n", difficulty)
	b.WriteString(`Return ONLY a valid JSON object (no prose, no markdown) with exactly:
{
  "question": "Clear question text",
  "code": "code snippet here (use empty string if not needed)",
  "options": ["option A", "option B", "option C", "option D"],
  "answerIndex": 0,
  "explanation": "Brief explanation of the correct answer"
}
`)
	return b.String()
}

func normalizeLanguage(language string) (string, error) {
	l := strings.ToLower(strings.TrimSpace(language))
	if l == "" {
		return "python", nil
	}
	if utf8.RuneCountInString(l) > maxLanguageLen {
		return "", appErr.ValidationError("language", "too long")
	}
	return l, nil
}
