package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// WSHandler runs one quiz session per WebSocket connection.
type WSHandler struct {
	auth     Authenticator
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(auth Authenticator, service *app.QuizService) *WSHandler {
	return &WSHandler{
		auth:    auth,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

// endedMessage is the last frame on a socket whose session was torn down.
const endedMessage = "ended"

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type tickPayload struct {
	Remaining int `json:"remaining"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS authenticates the student, starts a session for subjectId and
// relays actions and countdown events until the socket closes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subjectId")
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if subjectID == "" || token == "" {
		http.Error(w, "missing subjectId or token", http.StatusBadRequest)
		return
	}
	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	if user.Role != domain.RoleStudent {
		writeError(w, domain.ErrForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.service.StartQuiz(r.Context(), user, subjectID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	sessionID := session.ID()
	defer h.service.Abandon(sessionID)

	events, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				failed = true
				conn.Close()
				continue
			}
			if msg.Type == endedMessage {
				// The session is gone; unblock the read loop.
				failed = true
				conn.Close()
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					select {
					case send <- outboundMessage{Type: endedMessage}:
					case <-closeSignals:
					}
					return
				}
				select {
				case send <- eventMessage(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "started", Payload: session.View()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			send <- stateOrError(h.service.Answer(sessionID, user.ID, payload.QuestionID, payload.Option))
		case "next":
			send <- stateOrError(h.service.Next(sessionID, user.ID))
		case "previous":
			send <- stateOrError(h.service.Previous(sessionID, user.ID))
		case "submit":
			// Success and store failures reach the client through the session events.
			if _, err := h.service.Submit(r.Context(), sessionID, user.ID); err != nil && !reportedByEvents(err) {
				send <- errorMessage(err.Error())
			}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func eventMessage(ev app.SessionEvent) outboundMessage {
	switch ev.Type {
	case app.EventTick:
		return outboundMessage{Type: "tick", Payload: tickPayload{Remaining: ev.View.Remaining}}
	case app.EventCompleted:
		return outboundMessage{Type: "completed", Payload: ev.Outcome}
	default:
		return errorMessage(ev.Error)
	}
}

func stateOrError(view app.SessionView, err error) outboundMessage {
	if err != nil {
		return errorMessage(err.Error())
	}
	return outboundMessage{Type: "state", Payload: view}
}

func reportedByEvents(err error) bool {
	return !errors.Is(err, domain.ErrSessionClosed) &&
		!errors.Is(err, domain.ErrSubmissionInProgress) &&
		!errors.Is(err, domain.ErrSessionNotFound)
}
