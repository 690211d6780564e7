package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-platform/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Store implements app.Store on Postgres. Cascades are enforced by foreign keys.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const subjectColumns = `id, name, description, timer_enabled, timer_duration`

func scanSubject(row pgx.Row) (domain.Subject, error) {
	var s domain.Subject
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.TimerEnabled, &s.TimerDuration)
	return s, err
}

func (s *Store) ListSubjects(ctx context.Context) ([]domain.Subject, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subjectColumns+` FROM subjects ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Subject, 0)
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

func (s *Store) GetSubjectByID(ctx context.Context, id string) (domain.Subject, error) {
	subject, err := scanSubject(s.pool.QueryRow(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	if err != nil {
		return domain.Subject{}, fmt.Errorf("get subject: %w", err)
	}
	return subject, nil
}

func (s *Store) CreateSubject(ctx context.Context, subject domain.Subject) (domain.Subject, error) {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subjects (id, name, description, timer_enabled, timer_duration) VALUES ($1, $2, $3, $4, $5)`,
		subject.ID, subject.Name, subject.Description, subject.TimerEnabled, subject.TimerDuration)
	if err != nil {
		return domain.Subject{}, fmt.Errorf("create subject: %w", err)
	}
	return subject, nil
}

func (s *Store) UpdateSubject(ctx context.Context, subject domain.Subject) (domain.Subject, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subjects SET name=$2, description=$3, timer_enabled=$4, timer_duration=$5 WHERE id=$1`,
		subject.ID, subject.Name, subject.Description, subject.TimerEnabled, subject.TimerDuration)
	if err != nil {
		return domain.Subject{}, fmt.Errorf("update subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	return subject, nil
}

// DeleteSubject removes the subject; questions and results follow through
// ON DELETE CASCADE, and the subject is dropped from every student's access list.
func (s *Store) DeleteSubject(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM subjects WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("delete subject: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSubjectNotFound
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET subjects_access = array_remove(subjects_access, $1) WHERE $1 = ANY(subjects_access)`, id); err != nil {
			return fmt.Errorf("revoke subject access: %w", err)
		}
		return nil
	})
}

const questionColumns = `id, subject_id, question_text, options, correct_answer`

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.SubjectID, &q.QuestionText, &q.Options, &q.CorrectAnswer)
	return q, err
}

func (s *Store) GetQuestionsForSubject(ctx context.Context, subjectID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE subject_id=$1 ORDER BY seq`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO questions (id, subject_id, question_text, options, correct_answer) VALUES ($1, $2, $3, $4, $5)`,
		q.ID, q.SubjectID, q.QuestionText, q.Options, q.CorrectAnswer)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.Question{}, domain.ErrSubjectNotFound
		}
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET question_text=$2, options=$3, correct_answer=$4 WHERE id=$1`,
		q.ID, q.QuestionText, q.Options, q.CorrectAnswer)
	if err != nil {
		return domain.Question{}, fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

const userColumns = `id, name, email, role, subjects_access, password_hash`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.SubjectsAccess, &u.PasswordHash)
	u.Role = domain.Role(role)
	if u.SubjectsAccess == nil {
		u.SubjectsAccess = []string{}
	}
	return u, err
}

// ListUsers returns users with the given role, or every user when role is empty.
func (s *Store) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE $1 = '' OR role = $1 ORDER BY seq`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findUser(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email)
}

func (s *Store) findUser(ctx context.Context, query, arg string) (domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.SubjectsAccess == nil {
		u.SubjectsAccess = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role, subjects_access, password_hash) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, string(u.Role), u.SubjectsAccess, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrDuplicateAccount
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user; results follow through ON DELETE CASCADE.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *Store) SetSubjectAccess(ctx context.Context, userID string, subjectIDs []string) error {
	if subjectIDs == nil {
		subjectIDs = []string{}
	}
	tag, err := s.pool.Exec(ctx, `UPDATE users SET subjects_access=$2 WHERE id=$1`, userID, subjectIDs)
	if err != nil {
		return fmt.Errorf("set subject access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const resultColumns = `id, COALESCE(attempt_id, ''), user_id, subject_id, score, total_questions, taken_at, time_taken`

func scanResult(row pgx.Row) (domain.QuizResult, error) {
	var r domain.QuizResult
	err := row.Scan(&r.ID, &r.AttemptID, &r.UserID, &r.SubjectID, &r.Score, &r.TotalQuestions, &r.Date, &r.TimeTaken)
	return r, err
}

// SubmitQuiz appends a result. A repeated AttemptID returns the stored result;
// a result for a deleted subject or user is refused.
func (s *Store) SubmitQuiz(ctx context.Context, r domain.QuizResult) (domain.QuizResult, error) {
	id := uuid.NewString()
	stored, err := scanResult(s.pool.QueryRow(ctx,
		`INSERT INTO quiz_results (id, attempt_id, user_id, subject_id, score, total_questions, taken_at, time_taken)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING `+resultColumns,
		id, r.AttemptID, r.UserID, r.SubjectID, r.Score, r.TotalQuestions, r.Date, r.TimeTaken))
	if errors.Is(err, pgx.ErrNoRows) {
		stored, err = scanResult(s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM quiz_results WHERE attempt_id=$1`, r.AttemptID))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		if pgErr.ConstraintName == "quiz_results_user_id_fkey" {
			return domain.QuizResult{}, domain.ErrUserNotFound
		}
		return domain.QuizResult{}, domain.ErrSubjectNotFound
	}
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("submit quiz: %w", err)
	}
	return stored, nil
}

func (s *Store) ListResults(ctx context.Context, filter domain.ResultFilter) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM quiz_results
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR subject_id = $2)
		 ORDER BY taken_at DESC`,
		filter.UserID, filter.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	out := make([]domain.QuizResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Seed inserts demo rows, skipping any id that already exists.
func (s *Store) Seed(ctx context.Context, users []domain.User, subjects []domain.Subject, questions []domain.Question) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, sub := range subjects {
			if _, err := tx.Exec(ctx,
				`INSERT INTO subjects (id, name, description, timer_enabled, timer_duration) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
				sub.ID, sub.Name, sub.Description, sub.TimerEnabled, sub.TimerDuration); err != nil {
				return fmt.Errorf("seed subject %s: %w", sub.ID, err)
			}
		}
		for _, q := range questions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO questions (id, subject_id, question_text, options, correct_answer) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
				q.ID, q.SubjectID, q.QuestionText, q.Options, q.CorrectAnswer); err != nil {
				return fmt.Errorf("seed question %s: %w", q.ID, err)
			}
		}
		for _, u := range users {
			access := u.SubjectsAccess
			if access == nil {
				access = []string{}
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO users (id, name, email, role, subjects_access, password_hash) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
				u.ID, u.Name, u.Email, string(u.Role), access, u.PasswordHash); err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
