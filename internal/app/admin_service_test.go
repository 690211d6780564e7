package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/memory"
)

func newAdmin(store *memory.Store) *app.AdminService {
	return app.NewAdminService(store, store, store, store)
}

func TestEnrollStudent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(sampleSeed(t))
	admin := newAdmin(store)

	user, err := admin.EnrollStudent(ctx, app.StudentInput{Name: " Carol ", Email: "Carol@Quiz.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if user.Role != domain.RoleStudent || user.Email != "carol@quiz.com" || user.Name != "Carol" || len(user.SubjectsAccess) != 0 {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")); err != nil {
		t.Fatalf("password not hashed: %v", err)
	}

	before, _ := admin.ListStudents(ctx)
	if _, err := admin.EnrollStudent(ctx, app.StudentInput{Name: "Alice 2", Email: "alice@quiz.com", Password: "other123"}); !errors.Is(err, domain.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
	after, _ := admin.ListStudents(ctx)
	if len(after) != len(before) {
		t.Fatalf("duplicate enrolment must not add a user")
	}

	_, err = admin.EnrollStudent(ctx, app.StudentInput{Name: "Dan", Email: "dan@quiz.com", Password: "123"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["password"] == "" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestEnrolledStudentCanLogIn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(sampleSeed(t))
	admin := newAdmin(store)
	auth := app.NewAuthService(store, memory.NewRevocations(), app.AuthPassword, []byte("test-secret"), time.Hour)

	_, err := admin.EnrollStudent(ctx, app.StudentInput{Name: "Carol", Email: "carol@quiz.com"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["password"] != "is required" {
		t.Fatalf("expected password required, got %v", err)
	}
	if _, err := store.FindUserByEmail(ctx, "carol@quiz.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("rejected enrolment must not create a user, got %v", err)
	}

	_, err = admin.EnrollStudent(ctx, app.StudentInput{Email: "not-an-email"})
	if !errors.As(err, &verr) || verr.Fields["name"] == "" || verr.Fields["email"] == "" || verr.Fields["password"] == "" {
		t.Fatalf("expected name, email and password errors, got %v", err)
	}

	if _, err := admin.EnrollStudent(ctx, app.StudentInput{Name: "Carol", Email: "carol@quiz.com", Password: "carol123"}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	session, err := auth.Login(ctx, "carol@quiz.com", "carol123")
	if err != nil {
		t.Fatalf("login after enrolment: %v", err)
	}
	if session.User.Email != "carol@quiz.com" || session.User.Role != domain.RoleStudent {
		t.Fatalf("unexpected login user %+v", session.User)
	}
}

func TestEnrollWithoutPasswordInEmailMode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(sampleSeed(t))
	admin := app.NewAdminService(store, store, store, store, app.WithAuthMode(app.AuthEmail))
	auth := app.NewAuthService(store, memory.NewRevocations(), app.AuthEmail, []byte("test-secret"), time.Hour)

	if _, err := admin.EnrollStudent(ctx, app.StudentInput{Name: "Carol", Email: "carol@quiz.com"}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, err := auth.Login(ctx, "carol@quiz.com", ""); err != nil {
		t.Fatalf("email login: %v", err)
	}
}

func TestRemoveStudentDropsResults(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(sampleSeed(t))
	admin := newAdmin(store)

	if err := admin.RemoveStudent(ctx, "admin1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for admin, got %v", err)
	}
	if err := admin.RemoveStudent(ctx, "student1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if results, _ := store.ListResults(ctx, domain.ResultFilter{UserID: "student1"}); len(results) != 0 {
		t.Fatalf("expected results removed, got %d", len(results))
	}
	if err := admin.RemoveStudent(ctx, "student1"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateAccess(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(sampleSeed(t))
	admin := newAdmin(store)

	if err := admin.UpdateAccess(ctx, "student2", []string{"subj2", "subj2", "subj1"}); err != nil {
		t.Fatalf("update access: %v", err)
	}
	bob := mustUser(t, store, "student2")
	if len(bob.SubjectsAccess) != 2 || bob.SubjectsAccess[0] != "subj2" || bob.SubjectsAccess[1] != "subj1" {
		t.Fatalf("unexpected access %v", bob.SubjectsAccess)
	}

	if err := admin.UpdateAccess(ctx, "student2", []string{"nope"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unknown subject, got %v", err)
	}
	if err := admin.UpdateAccess(ctx, "admin1", []string{"subj1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for admin, got %v", err)
	}

	subjects, err := app.NewStudentService(store, store, store).Subjects(ctx, "student2")
	if err != nil || len(subjects) != 2 {
		t.Fatalf("expected two accessible subjects, got %d (%v)", len(subjects), err)
	}
}

func TestSubjectValidation(t *testing.T) {
	ctx := context.Background()
	admin := newAdmin(memory.NewStore(sampleSeed(t)))

	if _, err := admin.CreateSubject(ctx, app.SubjectInput{Name: "Timed", TimerEnabled: true}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for enabled timer without duration, got %v", err)
	}
	if _, err := admin.CreateSubject(ctx, app.SubjectInput{Name: ""}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	created, err := admin.CreateSubject(ctx, app.SubjectInput{Name: "Go", TimerDuration: 20})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.TimeLimit() != 0 {
		t.Fatalf("unexpected subject %+v", created)
	}
	updated, err := admin.UpdateSubject(ctx, created.ID, app.SubjectInput{Name: "Go", TimerEnabled: true, TimerDuration: 20})
	if err != nil || updated.TimeLimit() != 1200 {
		t.Fatalf("update: %+v (%v)", updated, err)
	}
	if _, err := admin.UpdateSubject(ctx, "missing", app.SubjectInput{Name: "X"}); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestQuestionValidation(t *testing.T) {
	ctx := context.Background()
	admin := newAdmin(memory.NewStore(sampleSeed(t)))

	cases := []app.QuestionInput{
		{QuestionText: "", Options: []string{"a", "b"}, CorrectAnswer: "a"},
		{QuestionText: "Q", Options: []string{"a"}, CorrectAnswer: "a"},
		{QuestionText: "Q", Options: []string{"a", "a"}, CorrectAnswer: "a"},
		{QuestionText: "Q", Options: []string{"a", ""}, CorrectAnswer: "a"},
		{QuestionText: "Q", Options: []string{"a", "b"}, CorrectAnswer: "c"},
	}
	for i, in := range cases {
		if _, err := admin.CreateQuestion(ctx, "subj2", in); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}

	if _, err := admin.CreateQuestion(ctx, "missing", app.QuestionInput{QuestionText: "Q", Options: []string{"a", "b"}, CorrectAnswer: "a"}); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}

	q, err := admin.CreateQuestion(ctx, "subj2", app.QuestionInput{QuestionText: "What does useMemo do?", Options: []string{"Memoizes", "Fetches"}, CorrectAnswer: "Memoizes"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	updated, err := admin.UpdateQuestion(ctx, q.ID, app.QuestionInput{QuestionText: "What does useMemo return?", Options: []string{"A value", "A promise"}, CorrectAnswer: "A value"})
	if err != nil || updated.SubjectID != "subj2" || updated.CorrectAnswer != "A value" {
		t.Fatalf("update question: %+v (%v)", updated, err)
	}
	questions, _ := admin.ListQuestions(ctx, "subj2")
	if len(questions) != 3 || questions[2].ID != q.ID {
		t.Fatalf("expected new question last, got %+v", questions)
	}
	if err := admin.DeleteQuestion(ctx, q.ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if err := admin.DeleteQuestion(ctx, q.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestDeleteSubjectCascadesAndResultsNameFallbacks(t *testing.T) {
	ctx := context.Background()
	seed := sampleSeed(t)
	seed.Results = append(seed.Results,
		domain.QuizResult{ID: "res2", AttemptID: "res2", UserID: "ghost", SubjectID: "subj2", Score: 2, TotalQuestions: 2, Date: time.Now()},
	)
	store := memory.NewStore(seed)
	admin := newAdmin(store)

	results, err := admin.AllResults(ctx)
	if err != nil {
		t.Fatalf("all results: %v", err)
	}
	if len(results) != 2 || results[0].ID != "res2" || results[0].UserName != "Deleted User" || results[1].UserName != "Alice" {
		t.Fatalf("unexpected results %+v", results)
	}

	if err := admin.DeleteSubject(ctx, "subj1"); err != nil {
		t.Fatalf("delete subject: %v", err)
	}
	if _, err := admin.ListQuestions(ctx, "subj1"); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
	history, _ := app.NewStudentService(store, store, store).History(ctx, "student1")
	if len(history) != 0 {
		t.Fatalf("expected subject results removed from history, got %d", len(history))
	}

	dash, err := admin.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.StudentCount != 2 || dash.SubjectCount != 2 || dash.TotalAttempts != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
	if dash.SubjectAttempts[0].SubjectID != "subj2" || dash.SubjectAttempts[0].Attempts != 1 || dash.SubjectAttempts[0].AverageScore != 100 {
		t.Fatalf("unexpected chart rows %+v", dash.SubjectAttempts)
	}
}
