package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"gemini-qa/internal/domain"
	"gemini-qa/internal/session"
	"gemini-qa/internal/stream"
	"gemini-qa/internal/usecase"
)

type stubDispatcher struct {
	fragments []string
	textErr   error
	answer    string
	imageErr  error

	question string
	image    []byte
	sess     *session.Session
}

func (s *stubDispatcher) AnswerText(_ context.Context, sess *session.Session, question string) (*stream.Stream, error) {
	s.sess = sess
	s.question = question
	if s.textErr != nil {
		return nil, s.textErr
	}
	sess.Append(domain.RoleUser, question)
	st := stream.FromSlice(s.fragments...)
	st.OnFinish(func(text string, err error) {
		if err == nil {
			sess.Append(domain.RoleModel, text)
		}
	})
	return st, nil
}

func (s *stubDispatcher) AnswerImage(_ context.Context, question string, image []byte) (string, error) {
	s.question = question
	s.image = image
	return s.answer, s.imageErr
}

type upstreamErr struct{ status int }

func (e *upstreamErr) Error() string       { return http.StatusText(e.status) }
func (e *upstreamErr) HTTPStatusCode() int { return e.status }

func makeEvent(path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, d Dispatcher) *Handler {
	t.Helper()
	h, err := NewHandler(d, session.NewStore(), nil)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil, nil)
	require.Error(t, err)
}

func TestHandle_Ask_HappyPath(t *testing.T) {
	d := &stubDispatcher{fragments: []string{"4"}}
	h := newTestHandler(t, d)

	resp, err := h.Handle(context.Background(), makeEvent("/ask", `{"question":"What is 2+2?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "What is 2+2?", d.question)

	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, "4", out.Answer)
	require.NotEmpty(t, out.ConversationID)
	require.Equal(t, []domain.ChatMessage{
		{Role: "user", Content: "What is 2+2?"},
		{Role: "model", Content: "4"},
	}, out.Transcript)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_Ask_ContinuesConversation(t *testing.T) {
	d := &stubDispatcher{fragments: []string{"first"}}
	h := newTestHandler(t, d)

	resp, err := h.Handle(context.Background(), makeEvent("/ask", `{"question":"one"}`))
	require.NoError(t, err)
	convID := parseBody[askResponse](t, resp.Body).ConversationID

	d.fragments = []string{"second"}
	resp, err = h.Handle(context.Background(), makeEvent("/ask", `{"question":"two","conversationId":"`+convID+`"}`))
	require.NoError(t, err)
	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, convID, out.ConversationID)
	require.Len(t, out.Transcript, 4)
}

func TestHandle_Describe_HappyPath(t *testing.T) {
	d := &stubDispatcher{answer: "a small square"}
	h := newTestHandler(t, d)

	img := []byte{0x89, 'P', 'N', 'G'}
	body := `{"question":"","image":"` + base64.StdEncoding.EncodeToString(img) + `"}`
	resp, err := h.Handle(context.Background(), makeEvent("/describe", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, img, d.image)
	require.Equal(t, "a small square", parseBody[describeResponse](t, resp.Body).Answer)
}

func TestHandle_Describe_AcceptsDataURL(t *testing.T) {
	d := &stubDispatcher{answer: "ok"}
	h := newTestHandler(t, d)

	img := []byte{0xff, 0xd8, 0xff}
	body := `{"question":"q","image":"data:image/jpeg;base64,` + base64.StdEncoding.EncodeToString(img) + `"}`
	resp, err := h.Handle(context.Background(), makeEvent("/describe", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, img, d.image)
}

func TestHandle_Describe_InvalidBase64(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{})

	resp, err := h.Handle(context.Background(), makeEvent("/describe", `{"image":"***"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, string(usecase.ErrorDecodeFailure), parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_InvalidBody(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{})

	resp, err := h.Handle(context.Background(), makeEvent("/ask", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorMissingInput), out.Error)
}

func TestHandle_Base64EncodedBody(t *testing.T) {
	d := &stubDispatcher{fragments: []string{"hi"}}
	h := newTestHandler(t, d)

	event := makeEvent("/ask", base64.StdEncoding.EncodeToString([]byte(`{"question":"hello"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", d.question)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{})

	resp, err := h.Handle(context.Background(), makeEvent("/nope", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	event := makeEvent("/ask", `{}`)
	event.HTTPMethod = http.MethodGet
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "missing input", err: &usecase.Error{Code: usecase.ErrorMissingInput, Reason: "empty_question"}, status: http.StatusBadRequest, code: string(usecase.ErrorMissingInput), message: "Please enter a question."},
		{name: "decode failure", err: &usecase.Error{Code: usecase.ErrorDecodeFailure, Reason: "invalid_image"}, status: http.StatusBadRequest, code: string(usecase.ErrorDecodeFailure)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorGatewayFailure, Reason: "gateway_error", Err: &upstreamErr{status: http.StatusTooManyRequests}}, status: http.StatusTooManyRequests, code: string(usecase.ErrorGatewayFailure), message: "Too Many Requests"},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorGatewayFailure, Reason: "gateway_error", Err: &upstreamErr{status: http.StatusForbidden}}, status: http.StatusBadGateway, code: string(usecase.ErrorGatewayFailure), message: "Forbidden"},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "nil_session"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubDispatcher{textErr: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent("/ask", `{"question":"What do you do?"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			if tc.message != "" {
				require.Equal(t, tc.message, out.Message)
			}
		})
	}
}

func TestHandle_MidStreamFailure(t *testing.T) {
	d := &failingStreamDispatcher{err: &usecase.Error{Code: usecase.ErrorGatewayFailure, Reason: "gateway_stream_error", Err: errors.New("reset")}}
	h := newTestHandler(t, d)

	resp, err := h.Handle(context.Background(), makeEvent("/ask", `{"question":"q"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "reset", parseBody[errorResponse](t, resp.Body).Message)
}

type failingStreamDispatcher struct {
	stubDispatcher
	err error
}

func (f *failingStreamDispatcher) AnswerText(_ context.Context, _ *session.Session, _ string) (*stream.Stream, error) {
	sent := false
	return stream.New(func() (string, error) {
		if !sent {
			sent = true
			return "partial", nil
		}
		return "", f.err
	}, nil), nil
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubDispatcher{fragments: []string{"ok"}})

	event := makeEvent("/ask", `{"question":"What do you do?"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
