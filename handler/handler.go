package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gemini-qa/internal/domain"
	"gemini-qa/internal/session"
	"gemini-qa/internal/stream"
	"gemini-qa/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Dispatcher is the subset of the usecase layer the API shell calls.
type Dispatcher interface {
	AnswerText(ctx context.Context, sess *session.Session, question string) (*stream.Stream, error)
	AnswerImage(ctx context.Context, question string, image []byte) (string, error)
}

type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversationId"`
}

type askResponse struct {
	Answer         string               `json:"answer"`
	ConversationID string               `json:"conversationId"`
	Transcript     []domain.ChatMessage `json:"transcript"`
}

type describeRequest struct {
	Question string `json:"question"`
	Image    string `json:"image"`
}

type describeResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves the question and image operations behind API Gateway.
type Handler struct {
	dispatcher Dispatcher
	sessions   *session.Store
	log        *zap.SugaredLogger
}

func NewHandler(d Dispatcher, sessions *session.Store, log *zap.SugaredLogger) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if sessions == nil {
		sessions = session.NewStore()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{dispatcher: d, sessions: sessions, log: log}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)
	log := h.log.With("correlationId", correlationID, "method", req.HTTPMethod, "path", req.Path)

	body, err := requestBody(req)
	if err != nil {
		log.Warnw("undecodable request body", "err", err)
		return errorJSON(http.StatusBadRequest, usecase.ErrorMissingInput, "Request body is not valid base64.", correlationID), nil
	}

	var resp events.APIGatewayProxyResponse
	switch route(req) {
	case "ask":
		resp = h.ask(ctx, log, body, correlationID)
	case "describe":
		resp = h.describe(ctx, log, body, correlationID)
	default:
		log.Warnw("unknown route")
		resp = errorJSON(http.StatusNotFound, "NOT_FOUND", "", correlationID)
	}
	return resp, nil
}

func (h *Handler) ask(ctx context.Context, log *zap.SugaredLogger, body []byte, correlationID string) events.APIGatewayProxyResponse {
	var in askRequest
	if err := json.Unmarshal(body, &in); err != nil {
		log.Warnw("invalid ask body", "err", err)
		return errorJSON(http.StatusBadRequest, usecase.ErrorMissingInput, "Request body must be a JSON object.", correlationID)
	}

	sess, created := h.sessions.GetOrCreate(in.ConversationID)
	if created {
		log.Debugw("conversation started", "conversationId", sess.ID())
	}

	s, err := h.dispatcher.AnswerText(ctx, sess, in.Question)
	if err != nil {
		return h.failure(log, err, correlationID)
	}
	answer, err := s.Collect()
	if err != nil {
		return h.failure(log, err, correlationID)
	}

	log.Infow("question answered", "conversationId", sess.ID(), "transcriptLen", sess.Len())
	return okJSON(askResponse{
		Answer:         answer,
		ConversationID: sess.ID(),
		Transcript:     sess.Messages(),
	}, correlationID)
}

func (h *Handler) describe(ctx context.Context, log *zap.SugaredLogger, body []byte, correlationID string) events.APIGatewayProxyResponse {
	var in describeRequest
	if err := json.Unmarshal(body, &in); err != nil {
		log.Warnw("invalid describe body", "err", err)
		return errorJSON(http.StatusBadRequest, usecase.ErrorMissingInput, "Request body must be a JSON object.", correlationID)
	}

	img, err := decodeImageField(in.Image)
	if err != nil {
		log.Warnw("image is not valid base64", "err", err)
		return errorJSON(http.StatusBadRequest, usecase.ErrorDecodeFailure, "The uploaded file is not a valid JPEG or PNG image.", correlationID)
	}

	answer, err := h.dispatcher.AnswerImage(ctx, in.Question, img)
	if err != nil {
		return h.failure(log, err, correlationID)
	}
	log.Infow("image described", "imageBytes", len(img))
	return okJSON(describeResponse{Answer: answer}, correlationID)
}

func (h *Handler) failure(log *zap.SugaredLogger, err error, correlationID string) events.APIGatewayProxyResponse {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("request failed", "code", code, "status", status, "err", err)
	} else {
		log.Warnw("request rejected", "code", code, "status", status, "err", err)
	}
	msg := usecase.UserMessage(err)
	if status == http.StatusInternalServerError {
		msg = ""
	}
	return errorJSON(status, code, msg, correlationID)
}

func statusFor(err error) (int, usecase.ErrorCode) {
	code := usecase.CodeOf(err)
	switch code {
	case usecase.ErrorMissingInput, usecase.ErrorDecodeFailure:
		return http.StatusBadRequest, code
	case usecase.ErrorGatewayFailure:
		if upstream, ok := usecase.UpstreamStatusCode(err); ok && upstream == http.StatusTooManyRequests {
			return http.StatusTooManyRequests, code
		}
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, usecase.ErrorInternal
	}
}

func route(req events.APIGatewayProxyRequest) string {
	if req.HTTPMethod != http.MethodPost {
		return ""
	}
	path := strings.TrimRight(req.Path, "/")
	switch {
	case strings.HasSuffix(path, "/ask"):
		return "ask"
	case strings.HasSuffix(path, "/describe"):
		return "describe"
	default:
		return ""
	}
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	return base64.StdEncoding.DecodeString(req.Body)
}

// decodeImageField accepts plain base64 or a data URL.
func decodeImageField(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "data:") {
		if i := strings.Index(v, ","); i >= 0 {
			v = v[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(v)
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func okJSON(v any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, usecase.ErrorInternal, "", correlationID)
	}
	return respond(http.StatusOK, body, correlationID)
}

func errorJSON(status int, code usecase.ErrorCode, message, correlationID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: string(code), Message: message})
	return respond(status, body, correlationID)
}

func respond(status int, body []byte, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
