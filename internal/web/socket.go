package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gemini-qa/internal/domain"
	"gemini-qa/internal/session"
	"gemini-qa/internal/usecase"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type socketQuestion struct {
	Question string `json:"question"`
}

// socketEvent is one server-to-browser frame. Type is one of fragment, done,
// warning or error.
type socketEvent struct {
	Type       string               `json:"type"`
	Text       string               `json:"text,omitempty"`
	Answer     string               `json:"answer,omitempty"`
	Message    string               `json:"message,omitempty"`
	Transcript []domain.ChatMessage `json:"transcript,omitempty"`
}

// handleAnswerSocket streams text answers over a WebSocket. Questions on one
// connection are answered one at a time, in the order received.
func (s *Server) handleAnswerSocket(w http.ResponseWriter, r *http.Request) {
	sess, cookie := s.resolveSession(r)
	header := http.Header{}
	if cookie != nil {
		header.Add("Set-Cookie", cookie.String())
	}

	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	log := s.log.With("session", sess.ID())
	for {
		var in socketQuestion
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnw("websocket read failed", "err", err)
			}
			return
		}
		if err := s.streamAnswer(r.Context(), conn, log, sess, in.Question); err != nil {
			log.Warnw("websocket write failed", "err", err)
			return
		}
	}
}

// streamAnswer forwards each fragment as it arrives. The returned error is a
// write failure on the connection; dispatcher failures are reported to the
// browser instead.
func (s *Server) streamAnswer(ctx context.Context, conn *websocket.Conn, log *zap.SugaredLogger, sess *session.Session, question string) error {
	st, err := s.dispatcher.AnswerText(ctx, sess, question)
	if err != nil {
		return writeEvent(conn, failureEvent(log, err))
	}
	defer st.Close()

	for st.Next() {
		if err := writeEvent(conn, socketEvent{Type: "fragment", Text: st.Fragment()}); err != nil {
			return err
		}
	}
	if err := st.Err(); err != nil {
		return writeEvent(conn, failureEvent(log, err))
	}
	return writeEvent(conn, socketEvent{Type: "done", Answer: st.Text(), Transcript: sess.Messages()})
}

func failureEvent(log *zap.SugaredLogger, err error) socketEvent {
	if usecase.CodeOf(err) == usecase.ErrorMissingInput {
		return socketEvent{Type: "warning", Message: usecase.UserMessage(err)}
	}
	log.Errorw("answer failed", "code", usecase.CodeOf(err), "err", err)
	return socketEvent{Type: "error", Message: usecase.UserMessage(err)}
}

func writeEvent(conn *websocket.Conn, ev socketEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
