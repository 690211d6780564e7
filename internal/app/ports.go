package app

import (
	"context"

	"quiz-platform/internal/domain"
)

// SubjectRepository persists subjects. DeleteSubject removes the subject's
// questions and results along with it.
type SubjectRepository interface {
	ListSubjects(ctx context.Context) ([]domain.Subject, error)
	GetSubjectByID(ctx context.Context, id string) (domain.Subject, error)
	CreateSubject(ctx context.Context, subject domain.Subject) (domain.Subject, error)
	UpdateSubject(ctx context.Context, subject domain.Subject) (domain.Subject, error)
	DeleteSubject(ctx context.Context, id string) error
}

// QuestionRepository persists questions. GetQuestionsForSubject returns them in quiz order.
type QuestionRepository interface {
	GetQuestionsForSubject(ctx context.Context, subjectID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	CreateQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	UpdateQuestion(ctx context.Context, question domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

// UserRepository persists accounts. CreateUser fails with domain.ErrDuplicateAccount
// when the email is taken; DeleteUser removes the user's results.
type UserRepository interface {
	ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	SetSubjectAccess(ctx context.Context, userID string, subjectIDs []string) error
}

// ResultRepository is append-only. SubmitQuiz returns the already stored result
// when a result with the same AttemptID exists.
type ResultRepository interface {
	SubmitQuiz(ctx context.Context, result domain.QuizResult) (domain.QuizResult, error)
	ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.QuizResult, error)
}

// Store bundles every repository a deployment needs.
type Store interface {
	SubjectRepository
	QuestionRepository
	UserRepository
	ResultRepository
}

// SessionRepository holds live quiz sessions (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Put(session *QuizSession)
	Get(id string) (*QuizSession, bool)
	Delete(id string)
	List() []*QuizSession
}
