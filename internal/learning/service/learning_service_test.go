package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	activity "learnhub/internal/activity/service"
	"learnhub/internal/challenge/catalog"
	harness "learnhub/internal/harness/model"
	progressRepo "learnhub/internal/progress/repository"
	progressService "learnhub/internal/progress/service"
	appErr "learnhub/pkg/errors"
)

type fakeRunner struct {
	pass bool
	err  error
	reqs []harness.ExecutionRequest
}

func (f *fakeRunner) Run(_ context.Context, req harness.ExecutionRequest) (*harness.ExecutionResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	res := &harness.ExecutionResult{AllPassed: f.pass}
	for i, tc := range req.TestCases {
		res.Results = append(res.Results, harness.CaseResult{Case: i + 1, Args: tc.Args, Expected: tc.Expected, Passed: f.pass})
	}
	return res, nil
}

type recordingLogger struct {
	inputs []activity.LogInput
	err    error
}

func (r *recordingLogger) Log(_ context.Context, in activity.LogInput) (*activity.LogResult, error) {
	r.inputs = append(r.inputs, in)
	return &activity.LogResult{}, r.err
}

func newTestService(t *testing.T, runner *fakeRunner, rec *recordingLogger) (*LearningService, *progressService.ProgressService) {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	cat.Seed(1)
	progress := progressService.NewProgressService(progressRepo.NewMemoryRepository())
	var logger ActivityLogger
	if rec != nil {
		logger = rec
	}
	return NewLearningService(cat, runner, progress, logger), progress
}

func TestNextMasksExpectedValues(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{}, nil)
	res, err := svc.Next(context.Background(), NextInput{Username: "alice", Topic: "loops", Difficulty: "easy", Language: "js"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if res.CompletedAll || res.Challenge == nil {
		t.Fatalf("expected a challenge, got %+v", res)
	}
	ch := res.Challenge
	if ch.Topic != "Loops" || ch.Language != harness.JavaScript || len(ch.Tests) == 0 {
		t.Fatalf("unexpected challenge: %+v", ch)
	}
	for i, tc := range ch.Tests {
		if tc.Idx != i {
			t.Fatalf("case %d has idx %d", i, tc.Idx)
		}
	}
}

func TestNextExcludesCompletedAndReportsCompletedAll(t *testing.T) {
	svc, progress := newTestService(t, &fakeRunner{}, nil)
	ctx := context.Background()
	if _, err := progress.Award(ctx, progressService.AwardInput{Username: "bob", ChallengeID: "recursion-factorial"}); err != nil {
		t.Fatalf("Award: %v", err)
	}
	res, err := svc.Next(ctx, NextInput{Username: "bob", Topic: "Recursion", Difficulty: "easy"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.CompletedAll || res.Challenge != nil {
		t.Fatalf("expected completedAll, got %+v", res)
	}
}

func TestNextValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{}, nil)
	ctx := context.Background()
	if _, err := svc.Next(ctx, NextInput{Username: "a", Language: "cobol"}); appErr.GetCode(err) != appErr.LanguageNotSupported {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if _, err := svc.Next(ctx, NextInput{Username: "a", Difficulty: "extreme"}); appErr.GetCode(err) != appErr.InvalidDifficulty {
		t.Fatalf("expected InvalidDifficulty, got %v", err)
	}
	if _, err := svc.Next(ctx, NextInput{Username: " "}); appErr.GetCode(err) != appErr.InvalidUsername {
		t.Fatalf("expected InvalidUsername, got %v", err)
	}
}

func TestRunTestsAwardsOnceWithMasteryBadge(t *testing.T) {
	runner := &fakeRunner{pass: true}
	rec := &recordingLogger{}
	svc, _ := newTestService(t, runner, rec)
	ctx := context.Background()
	in := RunInput{Username: "carol", ChallengeID: "recursion-factorial", Language: "python", Code: "def factorial(n): ..."}

	res, err := svc.RunTests(ctx, in)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !res.AllPassed || res.XPGained != 10 || res.AlreadyCompleted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !slices.Contains(res.BadgesAwarded, "Recursion-easy-master") || !slices.Contains(res.BadgesAwarded, "First Solve") {
		t.Fatalf("missing badges: %v", res.BadgesAwarded)
	}
	req := runner.reqs[0]
	if req.FunctionName != "factorial" || req.Language != "python" || len(req.TestCases) == 0 {
		t.Fatalf("unexpected harness request: %+v", req)
	}
	if len(rec.inputs) != 1 || rec.inputs[0].RequestID != "challenge_completed:carol:recursion-factorial" {
		t.Fatalf("unexpected activity logs: %+v", rec.inputs)
	}

	res, err = svc.RunTests(ctx, in)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !res.AlreadyCompleted || res.XPGained != 0 || len(res.BadgesAwarded) != 0 {
		t.Fatalf("second run must not award: %+v", res)
	}
	if len(rec.inputs) != 1 {
		t.Fatalf("second run must not log again")
	}
}

func TestRunTestsMasteryNeedsWholeTopic(t *testing.T) {
	svc, _ := newTestService(t, &fakeRunner{pass: true}, nil)
	ctx := context.Background()
	res, err := svc.RunTests(ctx, RunInput{Username: "dan", ChallengeID: "loops-sum-array", Code: "x"})
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if slices.Contains(res.BadgesAwarded, "Loops-easy-master") {
		t.Fatalf("badge awarded before the topic is complete")
	}
	res, err = svc.RunTests(ctx, RunInput{Username: "dan", ChallengeID: "loops-count-vowels", Code: "x"})
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !slices.Contains(res.BadgesAwarded, "Loops-easy-master") {
		t.Fatalf("expected mastery badge, got %v", res.BadgesAwarded)
	}
}

func TestRunTestsFailingRunAwardsNothing(t *testing.T) {
	rec := &recordingLogger{}
	svc, progress := newTestService(t, &fakeRunner{pass: false}, rec)
	ctx := context.Background()
	res, err := svc.RunTests(ctx, RunInput{Username: "erin", ChallengeID: "arrays-max", Code: "x"})
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if res.AllPassed || res.XPGained != 0 || len(rec.inputs) != 0 {
		t.Fatalf("unexpected award: %+v", res)
	}
	p, _ := progress.Get(ctx, "erin")
	if p.XP != 0 || len(p.CompletedChallengeIDs) != 0 {
		t.Fatalf("progress changed: %+v", p)
	}
}

func TestRunTestsErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeRunner{}, nil)
	if _, err := svc.RunTests(ctx, RunInput{Username: "a", ChallengeID: "nope", Code: "x"}); appErr.GetCode(err) != appErr.ChallengeNotFound {
		t.Fatalf("expected ChallengeNotFound, got %v", err)
	}
	if _, err := svc.RunTests(ctx, RunInput{Username: "a", Code: "x"}); appErr.GetCode(err) != appErr.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}

	harnessErr := appErr.New(appErr.CompilationError).WithDiagnostic("SyntaxError: invalid syntax")
	svc, _ = newTestService(t, &fakeRunner{err: harnessErr}, nil)
	_, err := svc.RunTests(ctx, RunInput{Username: "a", ChallengeID: "arrays-max", Code: "x"})
	if !errors.Is(err, harnessErr) {
		t.Fatalf("expected harness error to pass through, got %v", err)
	}
}

func TestActivityFailureDoesNotFailRun(t *testing.T) {
	rec := &recordingLogger{err: errors.New("kafka down")}
	svc, _ := newTestService(t, &fakeRunner{pass: true}, rec)
	res, err := svc.RunTests(context.Background(), RunInput{Username: "fay", ChallengeID: "strings-reverse", Language: "Python", Code: "x"})
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if res.XPGained != 20 {
		t.Fatalf("expected medium XP, got %d", res.XPGained)
	}
	if !strings.HasPrefix(rec.inputs[0].RequestID, "challenge_completed:fay:") {
		t.Fatalf("unexpected request id: %s", rec.inputs[0].RequestID)
	}
}

func TestMasteryBadge(t *testing.T) {
	if got := MasteryBadge("Arrays", "hard"); got != "Arrays-hard-master" {
		t.Fatalf("got %s", got)
	}
}
