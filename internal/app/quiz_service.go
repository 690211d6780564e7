package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quiz-platform/internal/domain"
	"quiz-platform/internal/metrics"
)

// QuizService hosts quiz sessions: it loads a subject's questions, starts the
// attempt, and routes student actions to the owning session.
type QuizService struct {
	subjects    SubjectRepository
	questions   QuestionRepository
	results     ResultRepository
	sessions    SessionRepository
	now         func() time.Time
	ticks       TickSource
	idleTimeout time.Duration
}

// QuizOption tunes a QuizService.
type QuizOption func(*QuizService)

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) QuizOption {
	return func(s *QuizService) { s.now = now }
}

// WithTickSource replaces the one-second ticker driving session countdowns.
func WithTickSource(ticks TickSource) QuizOption {
	return func(s *QuizService) { s.ticks = ticks }
}

// WithIdleTimeout sets how long an untouched session survives SweepIdle.
func WithIdleTimeout(d time.Duration) QuizOption {
	return func(s *QuizService) { s.idleTimeout = d }
}

func NewQuizService(subjects SubjectRepository, questions QuestionRepository, results ResultRepository, sessions SessionRepository, opts ...QuizOption) *QuizService {
	s := &QuizService{
		subjects:    subjects,
		questions:   questions,
		results:     results,
		sessions:    sessions,
		now:         time.Now,
		ticks:       SecondTicker,
		idleTimeout: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartQuiz loads the subject and its questions concurrently and opens a new
// session for user. Students may only start subjects they have access to.
func (s *QuizService) StartQuiz(ctx context.Context, user domain.User, subjectID string) (*QuizSession, error) {
	if !user.CanAccess(subjectID) {
		return nil, domain.ErrForbidden
	}

	session := newQuizSession(uuid.NewString(), uuid.NewString(), user, s.results, s.now, s.ticks)

	var (
		subject   domain.Subject
		questions []domain.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subject, err = s.subjects.GetSubjectByID(gctx, subjectID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = s.questions.GetQuestionsForSubject(gctx, subjectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := session.begin(subject, questions); err != nil {
		return nil, err
	}
	s.sessions.Put(session)
	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Inc()
	log.Printf("quiz session %s started: user=%s subject=%s questions=%d", session.ID(), user.ID, subjectID, len(questions))
	return session, nil
}

// Session returns the live session owned by userID.
func (s *QuizService) Session(sessionID, userID string) (*QuizSession, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok || session.UserID() != userID {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Answer records a choice in the given session.
func (s *QuizService) Answer(sessionID, userID, questionID, option string) (SessionView, error) {
	session, err := s.Session(sessionID, userID)
	if err != nil {
		return SessionView{}, err
	}
	return session.Answer(questionID, option)
}

// Next advances the session by one question.
func (s *QuizService) Next(sessionID, userID string) (SessionView, error) {
	session, err := s.Session(sessionID, userID)
	if err != nil {
		return SessionView{}, err
	}
	return session.Next()
}

// Previous moves the session back by one question.
func (s *QuizService) Previous(sessionID, userID string) (SessionView, error) {
	session, err := s.Session(sessionID, userID)
	if err != nil {
		return SessionView{}, err
	}
	return session.Previous()
}

// Submit persists the attempt and returns the result page data.
func (s *QuizService) Submit(ctx context.Context, sessionID, userID string) (Outcome, error) {
	session, err := s.Session(sessionID, userID)
	if err != nil {
		return Outcome{}, err
	}
	outcome, err := session.Submit(ctx)
	if err != nil {
		log.Printf("quiz session %s submit failed: %v", sessionID, err)
		return Outcome{}, err
	}
	log.Printf("quiz session %s submitted: score=%d/%d", sessionID, outcome.Result.Score, outcome.Result.TotalQuestions)
	return outcome, nil
}

// Abandon tears the session down and forgets it.
func (s *QuizService) Abandon(sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
	metrics.SessionsActive.Dec()
	if session.State() != StateCompleted {
		log.Printf("quiz session %s abandoned", sessionID)
	}
}

// CloseSubject discards and forgets every live session on the subject. It
// runs after the subject is deleted so no attempt can outlive it.
func (s *QuizService) CloseSubject(subjectID string) int {
	closed := 0
	for _, session := range s.sessions.List() {
		if session.SubjectID() != subjectID {
			continue
		}
		session.Discard(domain.ErrSubjectNotFound)
		s.Abandon(session.ID())
		closed++
	}
	if closed > 0 {
		log.Printf("closed %d quiz sessions of deleted subject %s", closed, subjectID)
	}
	return closed
}

// SweepIdle tears down completed sessions and sessions untouched for longer
// than the idle timeout. Sessions mid-submission are left alone.
func (s *QuizService) SweepIdle(now time.Time) int {
	swept := 0
	for _, session := range s.sessions.List() {
		switch session.State() {
		case StateSubmitting:
			continue
		case StateCompleted, StateDiscarded:
		default:
			if s.idleTimeout <= 0 || session.idleFor(now) < s.idleTimeout {
				continue
			}
		}
		s.Abandon(session.ID())
		swept++
	}
	return swept
}
