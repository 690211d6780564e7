package http

import (
	"net/http"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// API serves the REST endpoints of the admin and student portals.
type API struct {
	auth     *app.AuthService
	students *app.StudentService
	admin    *app.AdminService
}

func NewAPI(auth *app.AuthService, students *app.StudentService, admin *app.AdminService) *API {
	return &API{auth: auth, students: students, admin: admin}
}

// Register mounts every REST route on mux.
func (a *API) Register(mux *http.ServeMux) {
	student := func(h http.HandlerFunc) http.HandlerFunc { return requireRole(a.auth, domain.RoleStudent, h) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return requireRole(a.auth, domain.RoleAdmin, h) }

	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("POST /api/auth/logout", requireRole(a.auth, "", a.logout))
	mux.HandleFunc("GET /api/auth/me", requireRole(a.auth, "", a.me))

	mux.HandleFunc("GET /api/student/subjects", student(a.studentSubjects))
	mux.HandleFunc("GET /api/student/history", student(a.studentHistory))
	mux.HandleFunc("GET /api/student/dashboard", student(a.studentDashboard))

	mux.HandleFunc("GET /api/admin/students", admin(a.listStudents))
	mux.HandleFunc("POST /api/admin/students", admin(a.enrollStudent))
	mux.HandleFunc("DELETE /api/admin/students/{id}", admin(a.removeStudent))
	mux.HandleFunc("PUT /api/admin/students/{id}/access", admin(a.updateAccess))
	mux.HandleFunc("GET /api/admin/subjects", admin(a.listSubjects))
	mux.HandleFunc("POST /api/admin/subjects", admin(a.createSubject))
	mux.HandleFunc("PUT /api/admin/subjects/{id}", admin(a.updateSubject))
	mux.HandleFunc("DELETE /api/admin/subjects/{id}", admin(a.deleteSubject))
	mux.HandleFunc("GET /api/admin/subjects/{id}/questions", admin(a.listQuestions))
	mux.HandleFunc("POST /api/admin/subjects/{id}/questions", admin(a.createQuestion))
	mux.HandleFunc("PUT /api/admin/questions/{id}", admin(a.updateQuestion))
	mux.HandleFunc("DELETE /api/admin/questions/{id}", admin(a.deleteQuestion))
	mux.HandleFunc("GET /api/admin/results", admin(a.allResults))
	mux.HandleFunc("GET /api/admin/dashboard", admin(a.adminDashboard))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.Logout(r.Context(), currentToken(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (a *API) studentSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := a.students.Subjects(r.Context(), currentUser(r).ID)
	respond(w, http.StatusOK, subjects, err)
}

func (a *API) studentHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.students.History(r.Context(), currentUser(r).ID)
	respond(w, http.StatusOK, history, err)
}

func (a *API) studentDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.students.Dashboard(r.Context(), currentUser(r).ID)
	respond(w, http.StatusOK, dash, err)
}

func (a *API) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := a.admin.ListStudents(r.Context())
	respond(w, http.StatusOK, students, err)
}

func (a *API) enrollStudent(w http.ResponseWriter, r *http.Request) {
	var in app.StudentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	user, err := a.admin.EnrollStudent(r.Context(), in)
	respond(w, http.StatusCreated, user, err)
}

func (a *API) removeStudent(w http.ResponseWriter, r *http.Request) {
	err := a.admin.RemoveStudent(r.Context(), r.PathValue("id"))
	respond(w, http.StatusNoContent, nil, err)
}

type accessRequest struct {
	SubjectIDs []string `json:"subjectIds"`
}

func (a *API) updateAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := a.admin.UpdateAccess(r.Context(), r.PathValue("id"), req.SubjectIDs)
	respond(w, http.StatusNoContent, nil, err)
}

func (a *API) listSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := a.admin.ListSubjects(r.Context())
	respond(w, http.StatusOK, subjects, err)
}

func (a *API) createSubject(w http.ResponseWriter, r *http.Request) {
	var in app.SubjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	subject, err := a.admin.CreateSubject(r.Context(), in)
	respond(w, http.StatusCreated, subject, err)
}

func (a *API) updateSubject(w http.ResponseWriter, r *http.Request) {
	var in app.SubjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	subject, err := a.admin.UpdateSubject(r.Context(), r.PathValue("id"), in)
	respond(w, http.StatusOK, subject, err)
}

func (a *API) deleteSubject(w http.ResponseWriter, r *http.Request) {
	err := a.admin.DeleteSubject(r.Context(), r.PathValue("id"))
	respond(w, http.StatusNoContent, nil, err)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.admin.ListQuestions(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, questions, err)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	question, err := a.admin.CreateQuestion(r.Context(), r.PathValue("id"), in)
	respond(w, http.StatusCreated, question, err)
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	question, err := a.admin.UpdateQuestion(r.Context(), r.PathValue("id"), in)
	respond(w, http.StatusOK, question, err)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	err := a.admin.DeleteQuestion(r.Context(), r.PathValue("id"))
	respond(w, http.StatusNoContent, nil, err)
}

func (a *API) allResults(w http.ResponseWriter, r *http.Request) {
	results, err := a.admin.AllResults(r.Context())
	respond(w, http.StatusOK, results, err)
}

func (a *API) adminDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.admin.Dashboard(r.Context())
	respond(w, http.StatusOK, dash, err)
}

func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, v)
}
