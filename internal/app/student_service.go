package app

import (
	"context"
	"sort"

	"quiz-platform/internal/domain"
)

const unknownSubjectName = "Unknown Subject"

// StudentService backs the student portal: accessible subjects, history, dashboard.
type StudentService struct {
	subjects SubjectRepository
	users    UserRepository
	results  ResultRepository
}

func NewStudentService(subjects SubjectRepository, users UserRepository, results ResultRepository) *StudentService {
	return &StudentService{subjects: subjects, users: users, results: results}
}

// Subjects lists the subjects the student has been granted.
func (s *StudentService) Subjects(ctx context.Context, userID string) ([]domain.Subject, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Subject, 0, len(user.SubjectsAccess))
	for _, subject := range all {
		if user.CanAccess(subject.ID) {
			out = append(out, subject)
		}
	}
	return out, nil
}

// History returns the student's results newest first with subject names filled in.
func (s *StudentService) History(ctx context.Context, userID string) ([]domain.QuizResult, error) {
	results, err := s.results.ListResults(ctx, domain.ResultFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	names := subjectNames(subjects)
	for i := range results {
		results[i].SubjectName = nameOr(names, results[i].SubjectID, unknownSubjectName)
	}
	sortNewestFirst(results)
	return results, nil
}

// Dashboard is recomputed from the full history on every call.
func (s *StudentService) Dashboard(ctx context.Context, userID string) (StudentDashboard, error) {
	history, err := s.History(ctx, userID)
	if err != nil {
		return StudentDashboard{}, err
	}
	return summarizeHistory(history), nil
}

func subjectNames(subjects []domain.Subject) map[string]string {
	names := make(map[string]string, len(subjects))
	for _, subject := range subjects {
		names[subject.ID] = subject.Name
	}
	return names
}

func nameOr(names map[string]string, id, fallback string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return fallback
}

func sortNewestFirst(results []domain.QuizResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Date.After(results[j].Date)
	})
}
