package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrSubjectNotFound is returned when a subject id does not exist.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrQuestionNotFound indicates a question id is unknown or not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option is not one of the question's choices.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoQuestions means the subject has no questions, so no quiz can start.
	ErrNoQuestions = errors.New("subject has no questions")
	// ErrUserNotFound is returned when a user id or email does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateAccount is returned when enrolling an email that is already registered.
	ErrDuplicateAccount = errors.New("an account with this email already exists")
	// ErrSessionNotFound is returned when a quiz session is unknown or was torn down.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed means the session no longer accepts answers or submissions.
	ErrSessionClosed = errors.New("quiz session is closed")
	// ErrSubmissionInProgress rejects a second submission while one is pending.
	ErrSubmissionInProgress = errors.New("quiz submission already in progress")
	// ErrInvalidCredentials is returned by a failed login without saying which part was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated means the request carried no valid token.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the caller's role or access list does not allow the action.
	ErrForbidden = errors.New("access denied")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists field problems found when checking admin input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
