package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quiz-platform/internal/domain"
)

// Seed is the initial content of a Store.
type Seed struct {
	Users     []domain.User
	Subjects  []domain.Subject
	Questions []domain.Question
	Results   []domain.QuizResult
}

// Store is an in-memory implementation of app.Store. Slices keep insertion
// order, which is also quiz order for questions.
type Store struct {
	mu        sync.RWMutex
	users     []domain.User
	subjects  []domain.Subject
	questions []domain.Question
	results   []domain.QuizResult
	newID     func() string
}

func NewStore(seed Seed) *Store {
	s := &Store{newID: uuid.NewString}
	for _, u := range seed.Users {
		s.users = append(s.users, cloneUser(u))
	}
	s.subjects = append(s.subjects, seed.Subjects...)
	for _, q := range seed.Questions {
		s.questions = append(s.questions, cloneQuestion(q))
	}
	s.results = append(s.results, seed.Results...)
	return s
}

func (s *Store) ListSubjects(_ context.Context) ([]domain.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Subject{}, s.subjects...), nil
}

func (s *Store) GetSubjectByID(_ context.Context, id string) (domain.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.subjectIndex(id); i >= 0 {
		return s.subjects[i], nil
	}
	return domain.Subject{}, domain.ErrSubjectNotFound
}

func (s *Store) CreateSubject(_ context.Context, subject domain.Subject) (domain.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subject.ID == "" {
		subject.ID = s.newID()
	}
	s.subjects = append(s.subjects, subject)
	return subject, nil
}

func (s *Store) UpdateSubject(_ context.Context, subject domain.Subject) (domain.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.subjectIndex(subject.ID)
	if i < 0 {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	s.subjects[i] = subject
	return subject, nil
}

// DeleteSubject drops the subject with its questions and results and revokes
// access to it.
func (s *Store) DeleteSubject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.subjectIndex(id)
	if i < 0 {
		return domain.ErrSubjectNotFound
	}
	s.subjects = slices.Delete(s.subjects, i, i+1)
	s.questions = slices.DeleteFunc(s.questions, func(q domain.Question) bool { return q.SubjectID == id })
	s.results = slices.DeleteFunc(s.results, func(r domain.QuizResult) bool { return r.SubjectID == id })
	for i := range s.users {
		s.users[i].SubjectsAccess = slices.DeleteFunc(s.users[i].SubjectsAccess, func(x string) bool { return x == id })
	}
	return nil
}

func (s *Store) GetQuestionsForSubject(_ context.Context, subjectID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.SubjectID == subjectID {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.questionIndex(id); i >= 0 {
		return cloneQuestion(s.questions[i]), nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *Store) CreateQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subjectIndex(question.SubjectID) < 0 {
		return domain.Question{}, domain.ErrSubjectNotFound
	}
	if question.ID == "" {
		question.ID = s.newID()
	}
	s.questions = append(s.questions, cloneQuestion(question))
	return question, nil
}

func (s *Store) UpdateQuestion(_ context.Context, question domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.questionIndex(question.ID)
	if i < 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	s.questions[i] = cloneQuestion(question)
	return question, nil
}

func (s *Store) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.questionIndex(id)
	if i < 0 {
		return domain.ErrQuestionNotFound
	}
	s.questions = slices.Delete(s.questions, i, i+1)
	return nil
}

// ListUsers returns users with the given role, or every user when role is empty.
func (s *Store) ListUsers(_ context.Context, role domain.Role) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if role == "" || u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (s *Store) GetUser(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.userIndex(id); i >= 0 {
		return cloneUser(s.users[i]), nil
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return domain.User{}, domain.ErrDuplicateAccount
		}
	}
	if user.ID == "" {
		user.ID = s.newID()
	}
	if user.SubjectsAccess == nil {
		user.SubjectsAccess = []string{}
	}
	s.users = append(s.users, cloneUser(user))
	return user, nil
}

// DeleteUser drops the user and their results.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(id)
	if i < 0 {
		return domain.ErrUserNotFound
	}
	s.users = slices.Delete(s.users, i, i+1)
	s.results = slices.DeleteFunc(s.results, func(r domain.QuizResult) bool { return r.UserID == id })
	return nil
}

func (s *Store) SetSubjectAccess(_ context.Context, userID string, subjectIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.userIndex(userID)
	if i < 0 {
		return domain.ErrUserNotFound
	}
	s.users[i].SubjectsAccess = append([]string{}, subjectIDs...)
	return nil
}

// SubmitQuiz appends a result. A repeated AttemptID returns the stored result;
// a result for a deleted subject or user is refused.
func (s *Store) SubmitQuiz(_ context.Context, result domain.QuizResult) (domain.QuizResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.AttemptID != "" {
		for _, r := range s.results {
			if r.AttemptID == result.AttemptID {
				return r, nil
			}
		}
	}
	if s.subjectIndex(result.SubjectID) < 0 {
		return domain.QuizResult{}, domain.ErrSubjectNotFound
	}
	if s.userIndex(result.UserID) < 0 {
		return domain.QuizResult{}, domain.ErrUserNotFound
	}
	result.ID = s.newID()
	result.UserName = ""
	result.SubjectName = ""
	s.results = append(s.results, result)
	return result, nil
}

func (s *Store) ListResults(_ context.Context, filter domain.ResultFilter) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizResult, 0, len(s.results))
	for _, r := range s.results {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) subjectIndex(id string) int {
	return slices.IndexFunc(s.subjects, func(x domain.Subject) bool { return x.ID == id })
}

func (s *Store) questionIndex(id string) int {
	return slices.IndexFunc(s.questions, func(x domain.Question) bool { return x.ID == id })
}

func (s *Store) userIndex(id string) int {
	return slices.IndexFunc(s.users, func(x domain.User) bool { return x.ID == id })
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

func cloneUser(u domain.User) domain.User {
	u.SubjectsAccess = append([]string{}, u.SubjectsAccess...)
	return u
}
