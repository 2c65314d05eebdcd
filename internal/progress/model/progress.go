// Package model holds learner progress types.
package model

import (
	"slices"
	"time"
)

// CompletedChallenge records one first-time completion.
type CompletedChallenge struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Difficulty  string    `json:"difficulty"`
	Language    string    `json:"language"`
	CompletedAt time.Time `json:"completedAt"`
}

// Progress is a learner's XP, badges and completions.
type Progress struct {
	Username              string               `json:"username"`
	XP                    int64                `json:"xp"`
	Badges                []string             `json:"badges"`
	CompletedChallengeIDs []string             `json:"completedChallengeIds"`
	CompletedChallenges   []CompletedChallenge `json:"completedChallenges"`
}

// New returns an empty record for username.
func New(username string) *Progress {
	return &Progress{
		Username:              username,
		Badges:                []string{},
		CompletedChallengeIDs: []string{},
		CompletedChallenges:   []CompletedChallenge{},
	}
}

// HasCompleted reports whether challengeID was already completed.
func (p *Progress) HasCompleted(challengeID string) bool {
	return slices.Contains(p.CompletedChallengeIDs, challengeID)
}

// HasBadge reports whether the badge was already earned.
func (p *Progress) HasBadge(badge string) bool {
	return slices.Contains(p.Badges, badge)
}

// AddBadges appends badges not yet held and returns the ones actually added.
func (p *Progress) AddBadges(badges ...string) []string {
	added := make([]string, 0, len(badges))
	for _, b := range badges {
		if b == "" || p.HasBadge(b) {
			continue
		}
		p.Badges = append(p.Badges, b)
		added = append(added, b)
	}
	return added
}

// Complete records a completion. It is a no-op when the challenge is already completed.
func (p *Progress) Complete(c CompletedChallenge) bool {
	if p.HasCompleted(c.ID) {
		return false
	}
	p.CompletedChallengeIDs = append(p.CompletedChallengeIDs, c.ID)
	p.CompletedChallenges = append(p.CompletedChallenges, c)
	return true
}

// Clone returns a deep copy.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	out := *p
	out.Badges = slices.Clone(p.Badges)
	out.CompletedChallengeIDs = slices.Clone(p.CompletedChallengeIDs)
	out.CompletedChallenges = slices.Clone(p.CompletedChallenges)
	if out.Badges == nil {
		out.Badges = []string{}
	}
	if out.CompletedChallengeIDs == nil {
		out.CompletedChallengeIDs = []string{}
	}
	if out.CompletedChallenges == nil {
		out.CompletedChallenges = []CompletedChallenge{}
	}
	return &out
}

// AwardResult reports the outcome of a completion award.
type AwardResult struct {
	Progress         *Progress `json:"progress"`
	XPGained         int64     `json:"xpGained"`
	BadgesAwarded    []string  `json:"badgesAwarded"`
	AlreadyCompleted bool      `json:"alreadyCompleted"`
}
