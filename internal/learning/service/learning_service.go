// Package service runs the guided learning flow over the built-in catalog.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	activityModel "learnhub/internal/activity/model"
	activity "learnhub/internal/activity/service"
	"learnhub/internal/challenge/catalog"
	challenge "learnhub/internal/challenge/model"
	harness "learnhub/internal/harness/model"
	progress "learnhub/internal/progress/model"
	progressService "learnhub/internal/progress/service"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"go.uber.org/zap"
)

// Runner executes learner code against test cases.
type Runner interface {
	Run(ctx context.Context, req harness.ExecutionRequest) (*harness.ExecutionResult, error)
}

// ProgressTracker reads and awards learner progress.
type ProgressTracker interface {
	Get(ctx context.Context, username string) (*progress.Progress, error)
	Award(ctx context.Context, in progressService.AwardInput) (*progress.AwardResult, error)
}

// ActivityLogger records completed challenges.
type ActivityLogger interface {
	Log(ctx context.Context, in activity.LogInput) (*activity.LogResult, error)
}

// ChallengeView is a challenge as shown to a learner, expected values hidden.
type ChallengeView struct {
	ID           string                 `json:"id"`
	Topic        string                 `json:"topic"`
	Difficulty   string                 `json:"difficulty"`
	Title        string                 `json:"title"`
	Prompt       string                 `json:"prompt"`
	Language     harness.Language       `json:"language"`
	FunctionName string                 `json:"functionName"`
	Signature    string                 `json:"signature"`
	StarterCode  string                 `json:"starterCode"`
	Tests        []challenge.MaskedCase `json:"tests"`
}

// NextResult is the next challenge, or CompletedAll when none is left.
type NextResult struct {
	Challenge    *ChallengeView `json:"challenge"`
	CompletedAll bool           `json:"completedAll"`
}

// NextInput filters the next challenge.
type NextInput struct {
	Username   string
	Topic      string
	Difficulty string
	Language   string
}

// RunInput is a learner submission for a catalog challenge.
type RunInput struct {
	Username    string
	ChallengeID string
	Language    string
	Code        string
}

// RunResult is the harness outcome plus any reward.
type RunResult struct {
	Results          []harness.CaseResult `json:"results"`
	AllPassed        bool                 `json:"allPassed"`
	XPGained         int64                `json:"xpGained"`
	BadgesAwarded    []string             `json:"badgesAwarded"`
	AlreadyCompleted bool                 `json:"alreadyCompleted"`
}

// LearningService serves catalog challenges and rewards passing runs.
type LearningService struct {
	catalog  *catalog.Catalog
	runner   Runner
	progress ProgressTracker
	activity ActivityLogger
}

// NewLearningService creates the service. activityLogger may be nil.
func NewLearningService(cat *catalog.Catalog, runner Runner, tracker ProgressTracker, activityLogger ActivityLogger) *LearningService {
	return &LearningService{
		catalog:  cat,
		runner:   runner,
		progress: tracker,
		activity: activityLogger,
	}
}

// Next picks a random challenge the learner has not completed.
func (s *LearningService) Next(ctx context.Context, in NextInput) (*NextResult, error) {
	lang, err := languageOrDefault(in.Language)
	if err != nil {
		return nil, err
	}
	difficulty, ok := challenge.NormalizeDifficulty(in.Difficulty)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidDifficulty, "Invalid difficulty: %s", in.Difficulty)
	}
	p, err := s.progress.Get(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	ch, ok := s.catalog.Pick(strings.TrimSpace(in.Topic), difficulty, p.CompletedChallengeIDs, lang)
	if !ok {
		return &NextResult{CompletedAll: true}, nil
	}
	return &NextResult{Challenge: &ChallengeView{
		ID:           ch.ID,
		Topic:        ch.Topic,
		Difficulty:   ch.Difficulty,
		Title:        ch.Title,
		Prompt:       ch.Prompt,
		Language:     ch.Language,
		FunctionName: ch.FunctionName,
		Signature:    ch.Signature,
		StarterCode:  ch.StarterCode,
		Tests:        ch.Mask(),
	}}, nil
}

// RunTests runs code against the catalog's cases and, when every case
// passes, awards the completion and logs it.
func (s *LearningService) RunTests(ctx context.Context, in RunInput) (*RunResult, error) {
	username, err := progressService.NormalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	lang, err := languageOrDefault(in.Language)
	if err != nil {
		return nil, err
	}
	challengeID := strings.TrimSpace(in.ChallengeID)
	if challengeID == "" {
		return nil, appErr.ValidationError("challengeId", "is required")
	}
	ch, ok := s.catalog.FindByID(challengeID, lang)
	if !ok {
		return nil, appErr.New(appErr.ChallengeNotFound).WithDetail("challengeId", challengeID)
	}

	exec, err := s.runner.Run(ctx, harness.ExecutionRequest{
		Language:     string(lang),
		FunctionName: ch.FunctionName,
		Code:         in.Code,
		TestCases:    ch.TestCases,
	})
	if err != nil {
		return nil, err
	}
	out := &RunResult{Results: exec.Results, AllPassed: exec.AllPassed, BadgesAwarded: []string{}}
	if !exec.AllPassed {
		return out, nil
	}

	extra, err := s.masteryBadges(ctx, username, ch)
	if err != nil {
		return nil, err
	}
	award, err := s.progress.Award(ctx, progressService.AwardInput{
		Username:       username,
		ChallengeID:    ch.ID,
		ChallengeTitle: ch.Title,
		Difficulty:     ch.Difficulty,
		Language:       string(lang),
		ExtraBadges:    extra,
	})
	if err != nil {
		return nil, err
	}
	out.XPGained = award.XPGained
	out.BadgesAwarded = award.BadgesAwarded
	out.AlreadyCompleted = award.AlreadyCompleted
	if !award.AlreadyCompleted {
		s.logCompletion(ctx, username, ch, lang, award.XPGained)
	}
	return out, nil
}

// masteryBadges returns the topic badge when this completion finishes every
// catalog challenge of the challenge's topic and difficulty.
func (s *LearningService) masteryBadges(ctx context.Context, username string, ch challenge.Challenge) ([]string, error) {
	p, err := s.progress.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	for _, other := range s.catalog.List(ch.Topic, ch.Difficulty, ch.Language) {
		if other.ID != ch.ID && !p.HasCompleted(other.ID) {
			return nil, nil
		}
	}
	return []string{MasteryBadge(ch.Topic, ch.Difficulty)}, nil
}

func (s *LearningService) logCompletion(ctx context.Context, username string, ch challenge.Challenge, lang harness.Language, xp int64) {
	if s.activity == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"description": "Completed challenge: " + ch.Title,
		"metadata": map[string]any{
			"challengeId": ch.ID,
			"topic":       ch.Topic,
			"difficulty":  ch.Difficulty,
			"language":    lang,
			"xpGained":    xp,
		},
	})
	_, err := s.activity.Log(ctx, activity.LogInput{
		Username:  username,
		Action:    activityModel.ActionChallengeCompleted,
		Status:    activityModel.StatusCompleted,
		RequestID: fmt.Sprintf("challenge_completed:%s:%s", username, ch.ID),
		Details:   details,
	})
	if err != nil {
		logger.Warn(ctx, "log challenge activity failed",
			zap.String("username", username),
			zap.String("challenge_id", ch.ID),
			zap.Error(err),
		)
	}
}

// MasteryBadge names the badge for completing a whole topic and difficulty.
func MasteryBadge(topic, difficulty string) string {
	return fmt.Sprintf("%s-%s-master", topic, difficulty)
}

func languageOrDefault(language string) (harness.Language, error) {
	if strings.TrimSpace(language) == "" {
		return harness.Python, nil
	}
	lang, ok := harness.NormalizeLanguage(language)
	if !ok {
		return "", appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", language).
			WithDetail("language", language)
	}
	return lang, nil
}
