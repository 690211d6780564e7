package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-platform/internal/domain"
)

type fakeResults struct {
	mu      sync.Mutex
	stored  []domain.QuizResult
	failErr error
	block   chan struct{}
}

func (f *fakeResults) SubmitQuiz(_ context.Context, r domain.QuizResult) (domain.QuizResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		err := f.failErr
		f.failErr = nil
		return domain.QuizResult{}, err
	}
	for _, existing := range f.stored {
		if existing.AttemptID == r.AttemptID {
			return existing, nil
		}
	}
	r.ID = "res-" + r.AttemptID
	f.stored = append(f.stored, r)
	return r, nil
}

func (f *fakeResults) ListResults(_ context.Context, filter domain.ResultFilter) ([]domain.QuizResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.QuizResult
	for _, r := range f.stored {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

var (
	historySubject = domain.Subject{ID: "subj1", Name: "Modern History", TimerEnabled: true, TimerDuration: 1}
	reactSubject   = domain.Subject{ID: "subj2", Name: "React Fundamentals"}
	historyQs      = []domain.Question{
		{ID: "q1", SubjectID: "subj1", QuestionText: "When did World War II end?", Options: []string{"1942", "1945", "1950", "1939"}, CorrectAnswer: "1945"},
		{ID: "q2", SubjectID: "subj1", QuestionText: "Who was the first President of the United States?", Options: []string{"Abraham Lincoln", "George Washington"}, CorrectAnswer: "George Washington"},
	}
	alice = domain.User{ID: "student1", Name: "Alice", Role: domain.RoleStudent, SubjectsAccess: []string{"subj1", "subj2"}}
)

// idleTicks never fires, so tests drive tick() by hand.
func idleTicks() (<-chan time.Time, func()) { return nil, func() {} }

func newTestSession(t *testing.T, results ResultRepository, subject domain.Subject, ticks TickSource, now func() time.Time) *QuizSession {
	t.Helper()
	if now == nil {
		now = time.Now
	}
	s := newQuizSession("sess-1", "attempt-1", alice, results, now, ticks)
	if err := s.begin(subject, historyQs); err != nil {
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestBeginRejectsEmptyQuestionSet(t *testing.T) {
	s := newQuizSession("sess-1", "attempt-1", alice, &fakeResults{}, time.Now, idleTicks)
	if err := s.begin(reactSubject, nil); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if s.State() != StateLoading {
		t.Fatalf("expected session to stay loading, got %s", s.State())
	}
}

func TestTickCountsDownAndExpiresOnce(t *testing.T) {
	s := newTestSession(t, &fakeResults{}, historySubject, idleTicks, nil)

	if v := s.View(); !v.Timed || v.Remaining != 60 {
		t.Fatalf("expected 60 seconds on the clock, got %+v", v)
	}
	for i := 0; i < 59; i++ {
		if s.tick() {
			t.Fatalf("expired early at tick %d", i+1)
		}
	}
	if got := s.View().Remaining; got != 1 {
		t.Fatalf("expected 1 second left, got %d", got)
	}
	if !s.tick() {
		t.Fatalf("expected expiry on the 60th tick")
	}
	if s.tick() {
		t.Fatalf("expiry must be reported once")
	}
	if got := s.View().Remaining; got != 0 {
		t.Fatalf("remaining must not go below zero, got %d", got)
	}
}

func TestUntimedSessionIgnoresTicks(t *testing.T) {
	s := newTestSession(t, &fakeResults{}, reactSubject, idleTicks, nil)
	if s.tick() {
		t.Fatalf("untimed session must never expire")
	}
	if v := s.View(); v.Timed || v.Remaining != 0 {
		t.Fatalf("unexpected timer state %+v", v)
	}
}

func TestNavigationClampsToBounds(t *testing.T) {
	s := newTestSession(t, &fakeResults{}, reactSubject, idleTicks, nil)

	v, err := s.Previous()
	if err != nil || v.Index != 0 {
		t.Fatalf("previous on first question: index=%d err=%v", v.Index, err)
	}
	s.Next()
	v, _ = s.Next()
	if v.Index != 1 {
		t.Fatalf("next on last question should stay at 1, got %d", v.Index)
	}
	v, _ = s.Previous()
	if v.Index != 0 {
		t.Fatalf("expected index 0, got %d", v.Index)
	}
}

func TestAnswerReplacesEarlierChoice(t *testing.T) {
	s := newTestSession(t, &fakeResults{}, reactSubject, idleTicks, nil)

	s.Select("1942")
	v, err := s.Select("1945")
	if err != nil || v.Answers["q1"] != "1945" || len(v.Answers) != 1 {
		t.Fatalf("expected single overwritten answer, got %v (%v)", v.Answers, err)
	}
	if _, err := s.Answer("q2", "Napoleon"); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}
	if _, err := s.Answer("q9", "1945"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestSubmitScoresAndTimesTheAttempt(t *testing.T) {
	results := &fakeResults{}
	t0 := time.Date(2024, 10, 20, 9, 0, 0, 0, time.UTC)
	now := t0
	s := newTestSession(t, results, reactSubject, idleTicks, func() time.Time { return now })

	s.Answer("q1", "1945")
	s.Answer("q2", "Abraham Lincoln")
	now = t0.Add(90*time.Second + 400*time.Millisecond)

	outcome, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	r := outcome.Result
	if r.Score != 1 || r.TotalQuestions != 2 || r.TimeTaken != 90 || !r.Date.Equal(now) {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.SubjectName != reactSubject.Name || r.UserName != "Alice" {
		t.Fatalf("expected names on result, got %q/%q", r.SubjectName, r.UserName)
	}
	if outcome.Summary.Percentage != 50 || outcome.Summary.Feedback.Title != "Good Job!" {
		t.Fatalf("unexpected summary %+v", outcome.Summary)
	}
	if s.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", s.State())
	}
	if _, err := s.Select("1945"); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected answers rejected after completion, got %v", err)
	}
}

func TestSubmitFailureKeepsAnswersAndRetryStoresOnce(t *testing.T) {
	results := &fakeResults{failErr: errors.New("connection reset")}
	s := newTestSession(t, results, reactSubject, idleTicks, nil)
	s.Answer("q1", "1945")

	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatalf("expected first submit to fail")
	}
	v := s.View()
	if v.State != StateInProgress || v.Answers["q1"] != "1945" || v.LastError == "" {
		t.Fatalf("expected in-progress session with answers and error, got %+v", v)
	}

	outcome, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.Result.AttemptID != "attempt-1" || results.count() != 1 {
		t.Fatalf("expected one stored attempt, got %d", results.count())
	}
	if s.View().LastError != "" {
		t.Fatalf("error should clear after a successful retry")
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed on a second submit, got %v", err)
	}
	if results.count() != 1 {
		t.Fatalf("duplicate result stored")
	}
}

func TestSubmitInProgressBlocksOtherActions(t *testing.T) {
	results := &fakeResults{block: make(chan struct{})}
	s := newTestSession(t, results, historySubject, idleTicks, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateSubmitting {
		if time.Now().After(deadline) {
			t.Fatalf("session never entered submitting")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Submit(context.Background()); !errors.Is(err, domain.ErrSubmissionInProgress) {
		t.Fatalf("expected ErrSubmissionInProgress, got %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, domain.ErrSubmissionInProgress) {
		t.Fatalf("expected navigation blocked, got %v", err)
	}
	if s.tick() {
		t.Fatalf("ticks must be ignored while submitting")
	}
	before := s.View().Remaining

	close(results.block)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.tick() || s.View().Remaining != before {
		t.Fatalf("ticks must be ignored after completion")
	}
}

func TestTimerExpiryAutoSubmitsOnce(t *testing.T) {
	results := &fakeResults{}
	ticks := make(chan time.Time)
	s := newTestSession(t, results, historySubject, func() (<-chan time.Time, func()) { return ticks, func() {} }, nil)
	s.Answer("q1", "1945")

	events, cancel := s.Subscribe()
	defer cancel()

	go func() {
		for i := 0; i < 60; i++ {
			select {
			case ticks <- time.Now():
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventCompleted {
				continue
			}
			if ev.Outcome == nil || ev.Outcome.Result.Score != 1 {
				t.Fatalf("unexpected outcome %+v", ev.Outcome)
			}
			if results.count() != 1 {
				t.Fatalf("expected exactly one stored result, got %d", results.count())
			}
			if _, err := s.Submit(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
				t.Fatalf("manual submit after expiry should be rejected, got %v", err)
			}
			return
		case <-timeout:
			t.Fatalf("timed out waiting for auto-submit")
		}
	}
}

func TestCloseReleasesSubscribers(t *testing.T) {
	s := newTestSession(t, &fakeResults{}, historySubject, idleTicks, nil)
	events, cancel := s.Subscribe()
	defer cancel()

	s.Close()
	if _, ok := <-events; ok {
		t.Fatalf("expected subscriber channel to be closed")
	}
	if s.tick() {
		t.Fatalf("closed session must ignore ticks")
	}
	if _, err := s.Next(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSubmitForDeletedSubjectIsFinal(t *testing.T) {
	results := &fakeResults{failErr: domain.ErrSubjectNotFound}
	s := newTestSession(t, results, historySubject, idleTicks, nil)
	s.Answer("q1", "1945")
	events, cancel := s.Subscribe()
	defer cancel()

	if _, err := s.Submit(context.Background()); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
	v := s.View()
	if v.State != StateDiscarded || v.LastError == "" {
		t.Fatalf("expected a discarded session with its error, got %+v", v)
	}

	var seen []EventType
	for ev := range events {
		seen = append(seen, ev.Type)
	}
	if len(seen) != 1 || seen[0] != EventDiscarded {
		t.Fatalf("expected a single discarded event before release, got %v", seen)
	}

	// The store would accept a retry now; the session must not make one.
	if _, err := s.Submit(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after discard, got %v", err)
	}
	if s.tick() {
		t.Fatalf("discarded session must ignore ticks")
	}
	if results.count() != 0 {
		t.Fatalf("expected nothing stored, got %d", results.count())
	}
}

func TestManualSubmitStopsRunningCountdown(t *testing.T) {
	results := &fakeResults{}
	ticks := make(chan time.Time, 128)
	s := newTestSession(t, results, historySubject, func() (<-chan time.Time, func()) { return ticks, func() {} }, nil)
	s.Answer("q1", "1945")

	for i := 0; i < 10; i++ {
		ticks <- time.Now()
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.View().Remaining != 50 {
		if time.Now().After(deadline) {
			t.Fatalf("countdown never reached 50, at %d", s.View().Remaining)
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	select {
	case <-timer.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("countdown kept running after submit")
	}

	for i := 0; i < 60; i++ {
		ticks <- time.Now()
	}
	time.Sleep(20 * time.Millisecond)

	if results.count() != 1 {
		t.Fatalf("expected exactly one stored result, got %d", results.count())
	}
	v := s.View()
	if v.State != StateCompleted || v.Remaining != 50 {
		t.Fatalf("late ticks changed the completed session: %+v", v)
	}
}
