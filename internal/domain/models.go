package domain

import (
	"slices"
	"time"
)

// Role distinguishes administrators from students.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStudent
}

// Subject is a named quiz topic with an optional countdown.
type Subject struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	TimerEnabled  bool   `json:"timerEnabled"`
	TimerDuration int    `json:"timerDuration"` // minutes
}

// TimeLimit returns the countdown length in seconds, or 0 when the subject is untimed.
func (s Subject) TimeLimit() int {
	if !s.TimerEnabled || s.TimerDuration <= 0 {
		return 0
	}
	return s.TimerDuration * 60
}

// Question models a multiple-choice item; CorrectAnswer must be one of Options.
type Question struct {
	ID            string   `json:"id"`
	SubjectID     string   `json:"subjectId"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

// User is an administrator or a student. SubjectsAccess only matters for students.
type User struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           Role     `json:"role"`
	SubjectsAccess []string `json:"subjectsAccess"`
	PasswordHash   string   `json:"-"`
}

// CanAccess reports whether the user may list or start the subject.
func (u User) CanAccess(subjectID string) bool {
	return u.Role == RoleStudent && slices.Contains(u.SubjectsAccess, subjectID)
}

// QuizResult is the immutable record of one completed attempt.
// UserName and SubjectName are filled at read time and never stored.
type QuizResult struct {
	ID             string    `json:"id"`
	AttemptID      string    `json:"attemptId"`
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName,omitempty"`
	SubjectID      string    `json:"subjectId"`
	SubjectName    string    `json:"subjectName,omitempty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Date           time.Time `json:"date"`
	TimeTaken      int       `json:"timeTaken"` // seconds
}

// ResultFilter narrows ListResults; empty fields match everything.
type ResultFilter struct {
	UserID    string
	SubjectID string
}

// Matches reports whether r passes the filter.
func (f ResultFilter) Matches(r QuizResult) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	return true
}
