package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"quiz-platform/internal/app"
	"quiz-platform/internal/config"
	"quiz-platform/internal/infra/memory"
	"quiz-platform/internal/infra/postgres"
	redisinfra "quiz-platform/internal/infra/redis"
	transport "quiz-platform/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store app.Store
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
		log.Printf("using postgres store")
	} else {
		seed, err := demoSeed(time.Now())
		if err != nil {
			return err
		}
		store = memory.NewStore(seed)
		log.Printf("using in-memory store with demo data")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)
	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var (
		questions   app.QuestionRepository
		sessions    app.SessionRepository
		revocations app.TokenRevocations
	)
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, store, cacheTTL)
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
		revocations = redisinfra.NewRevocations(redisClient)
	} else {
		questions = memory.NewQuestionCache(store, cacheTTL)
		sessions = memory.NewSessionStore()
		revocations = memory.NewRevocations()
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		return errors.New("auth secret not configured (auth.secret or QUIZ_AUTH_SECRET)")
	}
	auth := app.NewAuthService(store, revocations, app.AuthMode(cfg.Auth.Mode), []byte(secret),
		config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
	quiz := app.NewQuizService(store, questions, store, sessions,
		app.WithIdleTimeout(config.TTLDuration(cfg.Quiz.IdleTimeout, 30*time.Minute)))
	students := app.NewStudentService(store, store, store)
	admin := app.NewAdminService(store, questions, store, store,
		app.WithAuthMode(app.AuthMode(cfg.Auth.Mode)),
		app.WithSubjectDeletedHook(func(subjectID string) { quiz.CloseSubject(subjectID) }))

	schedule := cfg.Quiz.SweepSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(schedule, func() {
		if n := quiz.SweepIdle(time.Now()); n > 0 {
			log.Printf("swept %d idle quiz sessions", n)
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	transport.NewAPI(auth, students, admin).Register(mux)
	mux.HandleFunc("GET /ws/quiz", transport.NewWSHandler(auth, quiz).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz platform on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
