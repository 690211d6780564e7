package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quiz-platform/internal/domain"
	"quiz-platform/internal/metrics"
)

// SessionState is the lifecycle position of a quiz attempt.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateInProgress SessionState = "in_progress"
	StateSubmitting SessionState = "submitting"
	StateCompleted  SessionState = "completed"
	// StateDiscarded ends an attempt whose subject or owner was deleted; nothing is stored.
	StateDiscarded SessionState = "discarded"
)

// EventType labels what a SessionEvent reports.
type EventType string

const (
	EventTick         EventType = "tick"
	EventCompleted    EventType = "completed"
	EventSubmitFailed EventType = "submit_failed"
	EventDiscarded    EventType = "discarded"
)

// SessionEvent is pushed to subscribers on ticks and submission outcomes.
type SessionEvent struct {
	Type    EventType   `json:"type"`
	View    SessionView `json:"view"`
	Outcome *Outcome    `json:"outcome,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID           string   `json:"id"`
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
}

// SessionView is a snapshot safe to send to the student.
type SessionView struct {
	SessionID string            `json:"sessionId"`
	AttemptID string            `json:"attemptId"`
	Subject   domain.Subject    `json:"subject"`
	Questions []PublicQuestion  `json:"questions"`
	Index     int               `json:"index"`
	Answers   map[string]string `json:"answers"`
	Timed     bool              `json:"timed"`
	Remaining int               `json:"remaining"`
	State     SessionState      `json:"state"`
	LastError string            `json:"lastError,omitempty"`
}

const autoSubmitTimeout = 15 * time.Second

// QuizSession is one student's attempt at one subject. It owns the transient
// state: position, answers, countdown. At most one submission is ever persisted.
type QuizSession struct {
	id        string
	attemptID string
	user      domain.User
	results   ResultRepository
	now       func() time.Time
	ticks     TickSource

	mu          sync.Mutex
	state       SessionState
	subject     domain.Subject
	questions   []domain.Question
	answers     map[string]string
	index       int
	timed       bool
	remaining   int
	expired     bool
	startedAt   time.Time
	lastActive  time.Time
	lastErr     error
	outcome     *Outcome
	closed      bool
	timer       *countdown
	subscribers map[chan SessionEvent]struct{}
}

func newQuizSession(id, attemptID string, user domain.User, results ResultRepository, now func() time.Time, ticks TickSource) *QuizSession {
	return &QuizSession{
		id:          id,
		attemptID:   attemptID,
		user:        user,
		results:     results,
		now:         now,
		ticks:       ticks,
		state:       StateLoading,
		answers:     make(map[string]string),
		lastActive:  now(),
		subscribers: make(map[chan SessionEvent]struct{}),
	}
}

// begin moves Loading -> InProgress. The start time is taken here, after
// loading, so load latency is not charged to the student.
func (s *QuizSession) begin(subject domain.Subject, questions []domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		return fmt.Errorf("begin quiz session in state %s", s.state)
	}

	s.subject = subject
	s.questions = append([]domain.Question(nil), questions...)
	s.startedAt = s.now()
	s.lastActive = s.startedAt
	s.state = StateInProgress
	if limit := subject.TimeLimit(); limit > 0 {
		s.timed = true
		s.remaining = limit
		s.timer = startCountdown(s.ticks, s.tick, s.autoSubmit)
	}
	return nil
}

// ID identifies the session within the SessionRepository.
func (s *QuizSession) ID() string { return s.id }

// AttemptID is stable across submission retries of this session.
func (s *QuizSession) AttemptID() string { return s.attemptID }

// UserID is the owner of the attempt.
func (s *QuizSession) UserID() string { return s.user.ID }

// SubjectID is the subject being attempted.
func (s *QuizSession) SubjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject.ID
}

// Next moves forward one question; it is a no-op on the last question.
func (s *QuizSession) Next() (SessionView, error) {
	return s.mutate(func() error {
		if s.index < len(s.questions)-1 {
			s.index++
		}
		return nil
	})
}

// Previous moves back one question; it is a no-op on the first question.
func (s *QuizSession) Previous() (SessionView, error) {
	return s.mutate(func() error {
		if s.index > 0 {
			s.index--
		}
		return nil
	})
}

// Select records option for the current question, replacing any earlier choice.
func (s *QuizSession) Select(option string) (SessionView, error) {
	return s.mutate(func() error {
		return s.answerLocked(s.questions[s.index], option)
	})
}

// Answer records option for questionID, replacing any earlier choice.
// The answer is not compared with the correct answer until submission.
func (s *QuizSession) Answer(questionID, option string) (SessionView, error) {
	return s.mutate(func() error {
		for _, q := range s.questions {
			if q.ID == questionID {
				return s.answerLocked(q, option)
			}
		}
		return domain.ErrQuestionNotFound
	})
}

func (s *QuizSession) answerLocked(q domain.Question, option string) error {
	if !q.HasOption(option) {
		return domain.ErrOptionNotFound
	}
	s.answers[q.ID] = option
	return nil
}

func (s *QuizSession) mutate(fn func() error) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return s.viewLocked(), err
	}
	s.lastActive = s.now()
	if err := fn(); err != nil {
		return s.viewLocked(), err
	}
	return s.viewLocked(), nil
}

func (s *QuizSession) checkOpenLocked() error {
	switch {
	case s.closed:
		return domain.ErrSessionClosed
	case s.state == StateSubmitting:
		return domain.ErrSubmissionInProgress
	case s.state != StateInProgress:
		return domain.ErrSessionClosed
	}
	return nil
}

// Submit scores and persists the attempt. On failure the session returns to
// InProgress with answers intact and may be submitted again.
func (s *QuizSession) Submit(ctx context.Context) (Outcome, error) {
	return s.submit(ctx, metrics.TriggerManual)
}

func (s *QuizSession) submit(ctx context.Context, trigger string) (Outcome, error) {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return Outcome{}, err
	}
	s.state = StateSubmitting
	now := s.now()
	s.lastActive = now
	record := domain.QuizResult{
		AttemptID:      s.attemptID,
		UserID:         s.user.ID,
		SubjectID:      s.subject.ID,
		Score:          Score(s.questions, s.answers),
		TotalQuestions: len(s.questions),
		Date:           now,
		TimeTaken:      int(now.Sub(s.startedAt) / time.Second),
	}
	s.mu.Unlock()

	stored, err := s.results.SubmitQuiz(ctx, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		metrics.SubmissionFailures.Inc()
		if errors.Is(err, domain.ErrSubjectNotFound) || errors.Is(err, domain.ErrUserNotFound) {
			s.discardLocked(err)
			return Outcome{}, fmt.Errorf("submit quiz: %w", err)
		}
		s.state = StateInProgress
		s.lastErr = err
		s.broadcastLocked(SessionEvent{Type: EventSubmitFailed, View: s.viewLocked(), Error: err.Error()})
		return Outcome{}, fmt.Errorf("submit quiz: %w", err)
	}

	stored.SubjectName = s.subject.Name
	stored.UserName = s.user.Name
	outcome := Outcome{
		Result:  stored,
		Summary: Summarize(stored),
		Review:  Review(s.questions, s.answers),
	}
	s.state = StateCompleted
	s.lastErr = nil
	s.outcome = &outcome
	s.stopTimerLocked()
	metrics.Submissions.WithLabelValues(trigger).Inc()
	s.broadcastLocked(SessionEvent{Type: EventCompleted, View: s.viewLocked(), Outcome: &outcome})
	return outcome, nil
}

// tick decrements the remaining time and reports when it reaches zero.
// It reports expiry at most once; ticks outside InProgress are ignored.
func (s *QuizSession) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.timed || s.expired || s.state != StateInProgress {
		return false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.expired = true
	}
	s.broadcastLocked(SessionEvent{Type: EventTick, View: s.viewLocked()})
	return s.expired
}

func (s *QuizSession) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), autoSubmitTimeout)
	defer cancel()
	if _, err := s.submit(ctx, metrics.TriggerTimer); err != nil {
		log.Printf("quiz session %s auto-submit declined: %v", s.id, err)
		return
	}
	log.Printf("quiz session %s auto-submitted", s.id)
}

// Discard ends an attempt that can no longer be recorded. Subscribers get a
// discarded event before they are released.
func (s *QuizSession) Discard(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == StateCompleted {
		return
	}
	s.discardLocked(reason)
}

func (s *QuizSession) discardLocked(reason error) {
	s.state = StateDiscarded
	s.lastErr = reason
	s.broadcastLocked(SessionEvent{Type: EventDiscarded, View: s.viewLocked(), Error: reason.Error()})
	s.closeLocked()
}

// Close tears the session down: the countdown stops, late ticks are ignored
// and subscribers are released.
func (s *QuizSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *QuizSession) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *QuizSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// View returns a snapshot of the session.
func (s *QuizSession) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Outcome returns the persisted result once the session completed.
func (s *QuizSession) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// State reports the current lifecycle state.
func (s *QuizSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *QuizSession) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Subscribe returns a channel of session events. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *QuizSession) Subscribe() (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *QuizSession) broadcastLocked(ev SessionEvent) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow reader: drop the oldest event so the newest state gets through.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *QuizSession) viewLocked() SessionView {
	questions := make([]PublicQuestion, 0, len(s.questions))
	for _, q := range s.questions {
		questions = append(questions, PublicQuestion{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      append([]string(nil), q.Options...),
		})
	}
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	view := SessionView{
		SessionID: s.id,
		AttemptID: s.attemptID,
		Subject:   s.subject,
		Questions: questions,
		Index:     s.index,
		Answers:   answers,
		Timed:     s.timed,
		Remaining: s.remaining,
		State:     s.state,
	}
	if s.lastErr != nil {
		view.LastError = s.lastErr.Error()
	}
	return view
}
