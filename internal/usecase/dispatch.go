package usecase

import (
	"context"
	"errors"
	"io"
	"strings"

	"gemini-qa/internal/domain"
	"gemini-qa/internal/imaging"
	"gemini-qa/internal/session"
	"gemini-qa/internal/stream"
)

// Gateway is the hosted model the dispatcher forwards queries to.
type Gateway interface {
	StreamChat(ctx context.Context, history []domain.ChatMessage, question string) (*stream.Stream, error)
	Describe(ctx context.Context, question string, img imaging.Image) (string, error)
}

// ImageDecoder validates raw upload bytes before they reach the gateway.
type ImageDecoder interface {
	Decode(data []byte) (imaging.Image, error)
}

// Dispatcher bridges UI actions to the model gateway and back.
type Dispatcher struct {
	gateway               Gateway
	decoder               ImageDecoder
	allowEmptyImagePrompt bool
}

// NewDispatcher returns a Dispatcher. An empty image prompt is rejected unless
// allowEmptyImagePrompt is set.
func NewDispatcher(gw Gateway, dec ImageDecoder, allowEmptyImagePrompt bool) (*Dispatcher, error) {
	if gw == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if dec == nil {
		return nil, errors.New("usecase: image decoder must not be nil")
	}
	return &Dispatcher{
		gateway:               gw,
		decoder:               dec,
		allowEmptyImagePrompt: allowEmptyImagePrompt,
	}, nil
}

// AnswerText appends question to the session transcript and streams the
// gateway's answer. The assembled answer is appended to the transcript once
// the stream ends cleanly. An empty question makes no gateway call.
func (d *Dispatcher) AnswerText(ctx context.Context, sess *session.Session, question string) (*stream.Stream, error) {
	if sess == nil {
		return nil, newError(ErrorInternal, "nil_session", nil)
	}
	if strings.TrimSpace(question) == "" {
		return nil, newError(ErrorMissingInput, reasonEmptyQuestion, nil)
	}

	history := replayableHistory(sess.Messages())
	sess.Append(domain.RoleUser, question)

	inner, err := d.gateway.StreamChat(ctx, history, question)
	if err != nil {
		return nil, newError(ErrorGatewayFailure, "gateway_error", err)
	}

	out := stream.New(func() (string, error) {
		if inner.Next() {
			return inner.Fragment(), nil
		}
		if err := inner.Err(); err != nil {
			return "", newError(ErrorGatewayFailure, "gateway_stream_error", err)
		}
		return "", io.EOF
	}, func() { _ = inner.Close() })

	out.OnFinish(func(text string, err error) {
		if err == nil {
			sess.Append(domain.RoleModel, text)
		}
	})
	return out, nil
}

// AnswerImage sends question and the uploaded image to the gateway in one
// blocking call. The transcript is not involved.
func (d *Dispatcher) AnswerImage(ctx context.Context, question string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", newError(ErrorMissingInput, reasonMissingImage, nil)
	}
	if strings.TrimSpace(question) == "" && !d.allowEmptyImagePrompt {
		return "", newError(ErrorMissingInput, reasonEmptyQuestion, nil)
	}

	img, err := d.decoder.Decode(image)
	if err != nil {
		return "", newError(ErrorDecodeFailure, "invalid_image", err)
	}

	answer, err := d.gateway.Describe(ctx, question, img)
	if err != nil {
		return "", newError(ErrorGatewayFailure, "gateway_error", err)
	}
	return answer, nil
}
