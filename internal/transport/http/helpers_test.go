package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/memory"
)

type testEnv struct {
	server *httptest.Server
	store  *memory.Store
}

// newTestEnv serves the full route table over a seeded memory store. Session
// countdowns advance only when the test sends on ticks.
func newTestEnv(t *testing.T, ticks chan time.Time) *testEnv {
	t.Helper()
	store := memory.NewStore(testSeed(t))
	auth := app.NewAuthService(store, memory.NewRevocations(), app.AuthPassword, []byte("test-secret"), time.Hour)
	quiz := app.NewQuizService(store, store, store, memory.NewSessionStore(),
		app.WithTickSource(func() (<-chan time.Time, func()) { return ticks, func() {} }))

	mux := http.NewServeMux()
	admin := app.NewAdminService(store, store, store, store,
		app.WithSubjectDeletedHook(func(subjectID string) { quiz.CloseSubject(subjectID) }))
	NewAPI(auth, app.NewStudentService(store, store, store), admin).Register(mux)
	mux.HandleFunc("GET /ws/quiz", NewWSHandler(auth, quiz).ServeWS)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store}
}

func testSeed(t *testing.T) memory.Seed {
	t.Helper()
	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return string(h)
	}
	return memory.Seed{
		Users: []domain.User{
			{ID: "admin1", Name: "Admin User", Email: "admin@quiz.com", Role: domain.RoleAdmin, PasswordHash: hash("admin123")},
			{ID: "student1", Name: "Alice", Email: "alice@quiz.com", Role: domain.RoleStudent, SubjectsAccess: []string{"subj1", "subj2"}, PasswordHash: hash("alice123")},
			{ID: "student2", Name: "Bob", Email: "bob@quiz.com", Role: domain.RoleStudent, PasswordHash: hash("bob123")},
		},
		Subjects: []domain.Subject{
			{ID: "subj1", Name: "Modern History", TimerEnabled: true, TimerDuration: 1},
			{ID: "subj2", Name: "React Fundamentals"},
		},
		Questions: []domain.Question{
			{ID: "q1", SubjectID: "subj1", QuestionText: "When did World War II end?", Options: []string{"1942", "1945", "1950", "1939"}, CorrectAnswer: "1945"},
			{ID: "q2", SubjectID: "subj1", QuestionText: "Who was the first President of the United States?", Options: []string{"Abraham Lincoln", "George Washington"}, CorrectAnswer: "George Washington"},
			{ID: "q3", SubjectID: "subj2", QuestionText: "What is JSX?", Options: []string{"A JavaScript library", "A syntax extension for JavaScript"}, CorrectAnswer: "A syntax extension for JavaScript"},
			{ID: "q4", SubjectID: "subj2", QuestionText: "Which hook is used for state management?", Options: []string{"useEffect", "useState"}, CorrectAnswer: "useState"},
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, status, body)
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &session); err != nil || session.Token == "" {
		t.Fatalf("login response %s: %v", body, err)
	}
	return session.Token
}
