package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"learnhub/internal/activity/model"
	"learnhub/internal/activity/repository"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100

	generalWindow    = 3 * time.Second
	codeReviewWindow = 5 * time.Second
	requestIDTTL     = 24 * time.Hour

	requestKeyPrefix = "activity:req:"
	recentKeyPrefix  = "activity:recent:"
	maxUsernameLen   = 64
)

// LogInput describes one activity to record.
type LogInput struct {
	Username  string
	Action    string
	Status    string
	RequestID string
	Details   json.RawMessage
}

// LogResult is the stored activity. Duplicate reports that an earlier entry
// was returned instead of a new one.
type LogResult struct {
	Activity  *model.Activity `json:"activity"`
	Duplicate bool            `json:"duplicate"`
}

// Config wires the activity service.
type Config struct {
	Repo      repository.Repository
	Deduper   Deduper
	Publisher *ActivityPublisher
}

// ActivityService records and lists learner activity.
type ActivityService struct {
	repo      repository.Repository
	dedupe    Deduper
	publisher *ActivityPublisher
	now       func() time.Time
	newID     func() string
}

func NewActivityService(cfg Config) *ActivityService {
	return &ActivityService{
		repo:      cfg.Repo,
		dedupe:    cfg.Deduper,
		publisher: cfg.Publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Log records an activity. Requests repeating a request id, or repeating the
// same action for the same user inside the action's window, return the
// earlier entry instead.
func (s *ActivityService) Log(ctx context.Context, in LogInput) (*LogResult, error) {
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	action, impliedStatus, ok := model.NormalizeAction(in.Action)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidActivityAction, "unknown action %q", in.Action)
	}
	fallback := impliedStatus
	if fallback == "" {
		fallback = model.StatusCompleted
	}
	status, ok := model.NormalizeStatus(in.Status, fallback)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidActivityStatus, "unknown status %q", in.Status)
	}
	if len(in.Details) > 0 && !json.Valid(in.Details) {
		return nil, appErr.ValidationError("details", "must be valid JSON")
	}

	a := &model.Activity{
		ID:        s.newID(),
		Username:  username,
		Action:    action,
		Status:    status,
		RequestID: strings.TrimSpace(in.RequestID),
		Details:   in.Details,
		CreatedAt: s.now().UTC(),
	}
	encoded, err := json.Marshal(a)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.ActivityLogFailed)
	}

	var claimed []string
	if a.RequestID != "" {
		key := requestKeyPrefix + a.RequestID
		prev, dup, held := s.claim(ctx, key, string(encoded), requestIDTTL)
		if dup {
			return prev, nil
		}
		if held {
			claimed = append(claimed, key)
		}
	}
	if window := duplicateWindow(action); window > 0 {
		key := recentKeyPrefix + username + ":" + action
		prev, dup, held := s.claim(ctx, key, string(encoded), window)
		if dup {
			if a.RequestID != "" {
				s.point(ctx, requestKeyPrefix+a.RequestID, prev.Activity)
			}
			return prev, nil
		}
		if held {
			claimed = append(claimed, key)
		}
	}

	if err := s.persist(ctx, a); err != nil {
		s.release(ctx, claimed)
		return nil, appErr.Wrapf(err, appErr.ActivityLogFailed, "log activity failed")
	}
	logger.Debug(ctx, "activity logged",
		zap.String("username", username),
		zap.String("action", action),
		zap.String("status", status),
	)
	return &LogResult{Activity: a}, nil
}

// History returns the newest entries of username. limit defaults to 50 and is capped at 100.
func (s *ActivityService) History(ctx context.Context, username string, limit int) ([]model.Activity, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	items, err := s.repo.History(ctx, username, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load activity history failed")
	}
	return items, nil
}

func (s *ActivityService) persist(ctx context.Context, a *model.Activity) error {
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, a)
		if err == nil {
			return nil
		}
		logger.Warn(ctx, "publish activity failed, writing directly", zap.Error(err))
	}
	err := s.repo.Save(ctx, a)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	return err
}

// claim fails open: a dedupe store error lets the write through. held reports
// that this call now owns key.
func (s *ActivityService) claim(ctx context.Context, key, value string, ttl time.Duration) (prev *LogResult, dup, held bool) {
	if s.dedupe == nil {
		return nil, false, false
	}
	existing, claimed, err := s.dedupe.Claim(ctx, key, value, ttl)
	if err != nil {
		logger.Warn(ctx, "activity dedupe unavailable", zap.String("key", key), zap.Error(err))
		return nil, false, false
	}
	if claimed {
		return nil, false, true
	}
	var stored model.Activity
	if err := json.Unmarshal([]byte(existing), &stored); err != nil {
		logger.Warn(ctx, "decode deduped activity failed", zap.String("key", key), zap.Error(err))
		return nil, false, false
	}
	return &LogResult{Activity: &stored, Duplicate: true}, true, false
}

func (s *ActivityService) release(ctx context.Context, keys []string) {
	if s.dedupe == nil || len(keys) == 0 {
		return
	}
	if err := s.dedupe.Release(ctx, keys...); err != nil {
		logger.Warn(ctx, "activity dedupe release failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *ActivityService) point(ctx context.Context, key string, a *model.Activity) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := s.dedupe.Replace(ctx, key, string(data), requestIDTTL); err != nil {
		logger.Warn(ctx, "activity dedupe update failed", zap.String("key", key), zap.Error(err))
	}
}

// challenge_completed entries are deduplicated by request id only.
func duplicateWindow(action string) time.Duration {
	switch action {
	case model.ActionCodeReview:
		return codeReviewWindow
	case model.ActionChallengeCompleted:
		return 0
	default:
		return generalWindow
	}
}

func normalizeUsername(username string) (string, error) {
	u := strings.TrimSpace(username)
	if u == "" || utf8.RuneCountInString(u) > maxUsernameLen {
		return "", appErr.New(appErr.InvalidUsername)
	}
	return u, nil
}
