// Package service applies XP and badge rules to learner progress.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	harness "learnhub/internal/harness/model"
	"learnhub/internal/progress/model"
	"learnhub/internal/progress/repository"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"go.uber.org/zap"
)

const maxUsernameLength = 64

// Badge names.
const (
	BadgeFirstSolve = "First Solve"
	BadgeHardHitter = "Hard Hitter"
	BadgeApprentice = "Apprentice (5)"
	BadgePro        = "Pro (10)"
	BadgeMaster     = "Master (20)"
)

var xpByDifficulty = map[string]int64{
	"easy":   10,
	"medium": 20,
	"hard":   30,
}

var milestones = []struct {
	total int
	badge string
}{
	{5, BadgeApprentice},
	{10, BadgePro},
	{20, BadgeMaster},
}

// AwardInput describes one passed challenge.
type AwardInput struct {
	Username       string
	ChallengeID    string
	ChallengeTitle string
	Difficulty     string
	Language       string
	// ExtraBadges are granted alongside the rule badges, e.g. topic mastery.
	ExtraBadges []string
}

// ProgressService reads and mutates learner progress.
type ProgressService struct {
	repo repository.Repository
	now  func() time.Time
}

// NewProgressService creates a new ProgressService.
func NewProgressService(repo repository.Repository) *ProgressService {
	return &ProgressService{repo: repo, now: time.Now}
}

// Get returns progress for username, creating an empty record when missing.
func (s *ProgressService) Get(ctx context.Context, username string) (*model.Progress, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrProgressNotFound) {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load progress failed")
	}
	p, err = s.repo.Update(ctx, username, func(*model.Progress) error { return nil })
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressUpdateFailed, "create progress failed")
	}
	return p, nil
}

// Award credits a first-time completion. Repeated awards for the same challenge gain nothing.
func (s *ProgressService) Award(ctx context.Context, in AwardInput) (*model.AwardResult, error) {
	username, err := NormalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	challengeID := strings.TrimSpace(in.ChallengeID)
	if challengeID == "" {
		return nil, appErr.ValidationError("challengeId", "is required")
	}
	difficulty := strings.ToLower(strings.TrimSpace(in.Difficulty))
	if difficulty == "" {
		difficulty = "easy"
	}
	xp, ok := xpByDifficulty[difficulty]
	if !ok {
		return nil, appErr.Newf(appErr.InvalidDifficulty, "Invalid difficulty: %s", in.Difficulty)
	}
	lang := harness.JavaScript
	if strings.TrimSpace(in.Language) != "" {
		if lang, ok = harness.NormalizeLanguage(in.Language); !ok {
			return nil, appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", in.Language)
		}
	}
	title := strings.TrimSpace(in.ChallengeTitle)
	if title == "" {
		title = challengeID
	}

	result := &model.AwardResult{BadgesAwarded: []string{}}
	p, err := s.repo.Update(ctx, username, func(p *model.Progress) error {
		result.XPGained = 0
		result.BadgesAwarded = []string{}
		result.AlreadyCompleted = p.HasCompleted(challengeID)
		if result.AlreadyCompleted {
			return nil
		}
		candidates := completionBadges(p, difficulty, lang)
		p.Complete(model.CompletedChallenge{
			ID:          challengeID,
			Title:       title,
			Difficulty:  difficulty,
			Language:    string(lang),
			CompletedAt: s.now().UTC(),
		})
		p.XP += xp
		result.XPGained = xp
		result.BadgesAwarded = p.AddBadges(append(candidates, in.ExtraBadges...)...)
		return nil
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressUpdateFailed, "award progress failed")
	}
	result.Progress = p
	logger.Info(ctx, "progress awarded",
		zap.String("username", username),
		zap.String("challenge_id", challengeID),
		zap.Int64("xp_gained", result.XPGained),
		zap.Bool("already_completed", result.AlreadyCompleted),
	)
	return result, nil
}

// AddXP adds amount XP and any new badges.
func (s *ProgressService) AddXP(ctx context.Context, username string, amount int64, badges ...string) (*model.Progress, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, appErr.ValidationError("amount", "must not be negative")
	}
	p, err := s.repo.Update(ctx, username, func(p *model.Progress) error {
		p.XP += amount
		p.AddBadges(badges...)
		return nil
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressUpdateFailed, "add xp failed")
	}
	return p, nil
}

// XPFor returns the XP a completion of difficulty is worth.
func XPFor(difficulty string) int64 {
	if xp, ok := xpByDifficulty[strings.ToLower(difficulty)]; ok {
		return xp
	}
	return xpByDifficulty["easy"]
}

// NormalizeUsername trims and checks a username.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", appErr.New(appErr.InvalidUsername).WithMessage("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", appErr.New(appErr.InvalidUsername).WithMessage(fmt.Sprintf("username must be at most %d characters", maxUsernameLength))
	}
	return username, nil
}

// completionBadges lists badges earned by the completion about to be recorded on p.
func completionBadges(p *model.Progress, difficulty string, lang harness.Language) []string {
	var out []string
	if len(p.CompletedChallengeIDs) == 0 {
		out = append(out, BadgeFirstSolve)
	}
	out = append(out, fmt.Sprintf("First %s Solve", strings.ToUpper(string(lang))))
	if difficulty == "hard" {
		out = append(out, BadgeHardHitter)
	}
	total := len(p.CompletedChallengeIDs) + 1
	for _, m := range milestones {
		if total >= m.total {
			out = append(out, m.badge)
		}
	}
	return out
}
