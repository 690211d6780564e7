package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"quiz-platform/internal/app"
	"quiz-platform/internal/config"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/memory"
	"quiz-platform/internal/infra/postgres"
)

// NewSeedCmd loads the demo accounts, subjects and questions into postgres.url.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo data into PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	seed, err := demoSeed(time.Now())
	if err != nil {
		return err
	}
	if err := postgres.NewStore(pool).Seed(ctx, seed.Users, seed.Subjects, seed.Questions); err != nil {
		return err
	}
	log.Printf("seeded %d users, %d subjects, %d questions", len(seed.Users), len(seed.Subjects), len(seed.Questions))
	return nil
}

// demoSeed is the data the platform ships with when no database is configured.
func demoSeed(now time.Time) (memory.Seed, error) {
	users := []struct {
		user     domain.User
		password string
	}{
		{domain.User{ID: "admin1", Name: "Admin User", Email: "admin@quiz.com", Role: domain.RoleAdmin}, "admin123"},
		{domain.User{ID: "student1", Name: "Alice", Email: "alice@quiz.com", Role: domain.RoleStudent, SubjectsAccess: []string{"subj1"}}, "alice123"},
		{domain.User{ID: "student2", Name: "Bob", Email: "bob@quiz.com", Role: domain.RoleStudent}, "bob123"},
	}
	seed := memory.Seed{}
	for _, u := range users {
		hash, err := app.HashPassword(u.password)
		if err != nil {
			return memory.Seed{}, fmt.Errorf("seed %s: %w", u.user.Email, err)
		}
		u.user.PasswordHash = hash
		seed.Users = append(seed.Users, u.user)
	}

	seed.Subjects = []domain.Subject{
		{ID: "subj1", Name: "Modern History", Description: "A quiz on world history from the 18th century onwards.", TimerEnabled: true, TimerDuration: 15},
		{ID: "subj2", Name: "React Fundamentals", Description: "Test your knowledge on the core concepts of React.", TimerEnabled: false, TimerDuration: 30},
	}
	seed.Questions = []domain.Question{
		{ID: "q1", SubjectID: "subj1", QuestionText: "When did World War II end?", Options: []string{"1942", "1945", "1950", "1939"}, CorrectAnswer: "1945"},
		{ID: "q2", SubjectID: "subj1", QuestionText: "Who was the first President of the United States?", Options: []string{"Abraham Lincoln", "Thomas Jefferson", "George Washington", "John Adams"}, CorrectAnswer: "George Washington"},
		{ID: "q3", SubjectID: "subj2", QuestionText: "What is JSX?", Options: []string{"A JavaScript library", "A syntax extension for JavaScript", "A CSS preprocessor", "A database query language"}, CorrectAnswer: "A syntax extension for JavaScript"},
		{ID: "q4", SubjectID: "subj2", QuestionText: "Which hook is used for state management in functional components?", Options: []string{"useEffect", "useContext", "useState", "useReducer"}, CorrectAnswer: "useState"},
	}
	seed.Results = []domain.QuizResult{
		{ID: "res1", AttemptID: "res1", UserID: "student1", SubjectID: "subj1", Score: 1, TotalQuestions: 2, Date: now.Add(-24 * time.Hour), TimeTaken: 300},
	}
	return seed, nil
}
