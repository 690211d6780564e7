package app

import (
	"context"
	"errors"
	"log"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"quiz-platform/internal/domain"
)

const (
	deletedSubjectName = "Deleted Subject"
	deletedUserName    = "Deleted User"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateInput runs struct tags and converts failures into a domain.ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &domain.ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = describeTag(fe)
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must have at least " + fe.Param() + " items or characters"
	case "unique":
		return "must not contain duplicates"
	case "gte":
		return "must be at least " + fe.Param()
	}
	return "is invalid (" + fe.Tag() + ")"
}

// StudentInput is the enrolment form.
type StudentInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,min=6"`
}

// SubjectInput is the subject form. TimerDuration is in minutes.
type SubjectInput struct {
	Name          string `json:"name" validate:"required"`
	Description   string `json:"description"`
	TimerEnabled  bool   `json:"timerEnabled"`
	TimerDuration int    `json:"timerDuration" validate:"gte=0"`
}

func (in SubjectInput) validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.TimerEnabled && in.TimerDuration <= 0 {
		return domain.NewValidationError("timerDuration", "must be positive when the timer is enabled")
	}
	return nil
}

// QuestionInput is the question form. CorrectAnswer must be one of Options.
type QuestionInput struct {
	QuestionText  string   `json:"questionText" validate:"required"`
	Options       []string `json:"options" validate:"min=2,unique,dive,required"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
}

func (in QuestionInput) validate() error {
	if err := validateInput(in); err != nil {
		return err
	}
	q := domain.Question{Options: in.Options}
	if !q.HasOption(in.CorrectAnswer) {
		return domain.NewValidationError("correctAnswer", "must be one of the options")
	}
	return nil
}

// AdminService backs the administrator portal.
type AdminService struct {
	subjects  SubjectRepository
	questions QuestionRepository
	users     UserRepository
	results   ResultRepository

	authMode         AuthMode
	onSubjectDeleted func(subjectID string)
}

type AdminOption func(*AdminService)

// WithAuthMode sets the login mode enrolment has to satisfy. In AuthPassword
// mode every student needs a password.
func WithAuthMode(mode AuthMode) AdminOption {
	return func(s *AdminService) { s.authMode = mode }
}

// WithSubjectDeletedHook runs fn after a subject is deleted.
func WithSubjectDeletedHook(fn func(subjectID string)) AdminOption {
	return func(s *AdminService) { s.onSubjectDeleted = fn }
}

func NewAdminService(subjects SubjectRepository, questions QuestionRepository, users UserRepository, results ResultRepository, opts ...AdminOption) *AdminService {
	s := &AdminService{subjects: subjects, questions: questions, users: users, results: results, authMode: AuthPassword}
	for _, opt := range opts {
		opt(s)
	}
	if s.authMode == "" {
		s.authMode = AuthPassword
	}
	return s
}

func (s *AdminService) ListStudents(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx, domain.RoleStudent)
}

// EnrollStudent creates a student account. An email already in use fails with
// domain.ErrDuplicateAccount and nothing is written.
func (s *AdminService) EnrollStudent(ctx context.Context, in StudentInput) (domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := s.validateStudent(in); err != nil {
		return domain.User{}, err
	}

	if _, err := s.users.FindUserByEmail(ctx, in.Email); err == nil {
		return domain.User{}, domain.ErrDuplicateAccount
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}

	user := domain.User{
		Name:           in.Name,
		Email:          in.Email,
		Role:           domain.RoleStudent,
		SubjectsAccess: []string{},
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return domain.User{}, err
		}
		user.PasswordHash = hash
	}
	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	log.Printf("student %s enrolled", created.ID)
	return created, nil
}

func (s *AdminService) validateStudent(in StudentInput) error {
	err := validateInput(in)
	if s.authMode != AuthPassword || in.Password != "" {
		return err
	}
	if err == nil {
		return domain.NewValidationError("password", "is required")
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	verr.Fields["password"] = "is required"
	return verr
}

// RemoveStudent deletes a student together with their quiz results.
func (s *AdminService) RemoveStudent(ctx context.Context, userID string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != domain.RoleStudent {
		return domain.ErrForbidden
	}
	return s.users.DeleteUser(ctx, userID)
}

// UpdateAccess replaces the set of subjects a student may take.
func (s *AdminService) UpdateAccess(ctx context.Context, userID string, subjectIDs []string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != domain.RoleStudent {
		return domain.NewValidationError("userId", "subject access only applies to students")
	}

	seen := make(map[string]struct{}, len(subjectIDs))
	access := make([]string, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		if _, err := s.subjects.GetSubjectByID(ctx, id); err != nil {
			if errors.Is(err, domain.ErrSubjectNotFound) {
				return domain.NewValidationError("subjectIds", "unknown subject "+id)
			}
			return err
		}
		seen[id] = struct{}{}
		access = append(access, id)
	}
	return s.users.SetSubjectAccess(ctx, userID, access)
}

func (s *AdminService) ListSubjects(ctx context.Context) ([]domain.Subject, error) {
	return s.subjects.ListSubjects(ctx)
}

func (s *AdminService) CreateSubject(ctx context.Context, in SubjectInput) (domain.Subject, error) {
	if err := in.validate(); err != nil {
		return domain.Subject{}, err
	}
	return s.subjects.CreateSubject(ctx, domain.Subject{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		TimerEnabled:  in.TimerEnabled,
		TimerDuration: in.TimerDuration,
	})
}

func (s *AdminService) UpdateSubject(ctx context.Context, id string, in SubjectInput) (domain.Subject, error) {
	if err := in.validate(); err != nil {
		return domain.Subject{}, err
	}
	return s.subjects.UpdateSubject(ctx, domain.Subject{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		TimerEnabled:  in.TimerEnabled,
		TimerDuration: in.TimerDuration,
	})
}

// DeleteSubject removes the subject, its questions and every result recorded against it.
func (s *AdminService) DeleteSubject(ctx context.Context, id string) error {
	if err := s.subjects.DeleteSubject(ctx, id); err != nil {
		return err
	}
	log.Printf("subject %s deleted with its questions and results", id)
	if s.onSubjectDeleted != nil {
		s.onSubjectDeleted(id)
	}
	return nil
}

func (s *AdminService) ListQuestions(ctx context.Context, subjectID string) ([]domain.Question, error) {
	if _, err := s.subjects.GetSubjectByID(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.questions.GetQuestionsForSubject(ctx, subjectID)
}

func (s *AdminService) CreateQuestion(ctx context.Context, subjectID string, in QuestionInput) (domain.Question, error) {
	if err := in.validate(); err != nil {
		return domain.Question{}, err
	}
	if _, err := s.subjects.GetSubjectByID(ctx, subjectID); err != nil {
		return domain.Question{}, err
	}
	return s.questions.CreateQuestion(ctx, domain.Question{
		SubjectID:     subjectID,
		QuestionText:  strings.TrimSpace(in.QuestionText),
		Options:       in.Options,
		CorrectAnswer: in.CorrectAnswer,
	})
}

func (s *AdminService) UpdateQuestion(ctx context.Context, id string, in QuestionInput) (domain.Question, error) {
	if err := in.validate(); err != nil {
		return domain.Question{}, err
	}
	existing, err := s.questions.GetQuestion(ctx, id)
	if err != nil {
		return domain.Question{}, err
	}
	existing.QuestionText = strings.TrimSpace(in.QuestionText)
	existing.Options = in.Options
	existing.CorrectAnswer = in.CorrectAnswer
	return s.questions.UpdateQuestion(ctx, existing)
}

func (s *AdminService) DeleteQuestion(ctx context.Context, id string) error {
	return s.questions.DeleteQuestion(ctx, id)
}

// AllResults lists every attempt newest first, naming deleted subjects and users.
func (s *AdminService) AllResults(ctx context.Context) ([]domain.QuizResult, error) {
	results, err := s.results.ListResults(ctx, domain.ResultFilter{})
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	subjectName := subjectNames(subjects)
	userName := make(map[string]string, len(users))
	for _, u := range users {
		userName[u.ID] = u.Name
	}
	for i := range results {
		results[i].SubjectName = nameOr(subjectName, results[i].SubjectID, deletedSubjectName)
		results[i].UserName = nameOr(userName, results[i].UserID, deletedUserName)
	}
	sortNewestFirst(results)
	return results, nil
}

// Dashboard is recomputed from the stores on every call.
func (s *AdminService) Dashboard(ctx context.Context) (AdminDashboard, error) {
	students, err := s.users.ListUsers(ctx, domain.RoleStudent)
	if err != nil {
		return AdminDashboard{}, err
	}
	subjects, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		return AdminDashboard{}, err
	}
	results, err := s.results.ListResults(ctx, domain.ResultFilter{})
	if err != nil {
		return AdminDashboard{}, err
	}
	return AdminDashboard{
		StudentCount:    len(students),
		SubjectCount:    len(subjects),
		TotalAttempts:   len(results),
		SubjectAttempts: subjectAttempts(subjects, results),
	}, nil
}
