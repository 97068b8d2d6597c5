package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"gemini-qa/internal/credentials"
	"gemini-qa/internal/domain"
	"gemini-qa/internal/imaging"
	"gemini-qa/internal/stream"
)

const DefaultModel = openaisdk.ChatModelGPT4o

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client answers questions through the Responses API. It is the alternate
// model gateway; the SDK client is built once the API key is first needed.
type Client struct {
	creds             credentials.Source
	model             openaisdk.ChatModel
	baseURL           string
	httpClient        *http.Client
	systemInstruction string

	mu     sync.Mutex
	client *openaisdk.Client
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = openaisdk.ChatModel(m)
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithSystemInstruction(text string) Option {
	return func(c *Client) {
		c.systemInstruction = strings.TrimSpace(text)
	}
}

func NewClient(creds credentials.Source, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("openai: credential source must not be nil")
	}
	c := &Client{
		creds:      creds,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Model() string {
	return string(c.model)
}

func (c *Client) sdk(ctx context.Context) (*openaisdk.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	apiKey, err := c.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve API key: %w", err)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if c.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(c.httpClient))
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL(c.baseURL)))
	}
	client := openaisdk.NewClient(opts...)
	c.client = &client
	return c.client, nil
}

// baseURL normalises the configured endpoint so relative API paths resolve
// under /v1/.
func baseURL(raw string) string {
	base := strings.TrimRight(raw, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

// StreamChat asks the question with the prior turns as context. The Responses
// call is unary, so the whole answer arrives as a single fragment.
func (c *Client) StreamChat(ctx context.Context, history []domain.ChatMessage, question string) (*stream.Stream, error) {
	items := c.instructionItems()
	for _, m := range history {
		role := responses.EasyInputMessageRoleUser
		if m.Role == domain.RoleModel {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}
	items = append(items, responses.ResponseInputItemParamOfMessage(question, responses.EasyInputMessageRoleUser))

	out, err := c.respond(ctx, items)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return stream.FromSlice(), nil
	}
	return stream.FromSlice(out), nil
}

// Describe sends question and img as one user message. The image travels as
// a base64 data URL.
func (c *Client) Describe(ctx context.Context, question string, img imaging.Image) (string, error) {
	content := make(responses.ResponseInputMessageContentListParam, 0, 2)
	if strings.TrimSpace(question) != "" {
		content = append(content, responses.ResponseInputContentParamOfInputText(question))
	}
	imageParam := responses.ResponseInputContentParamOfInputImage(responses.ResponseInputImageDetailAuto)
	imageParam.OfInputImage.ImageURL = openaisdk.String(dataURL(img))
	content = append(content, imageParam)

	items := c.instructionItems()
	items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRoleUser))
	return c.respond(ctx, items)
}

func (c *Client) instructionItems() responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, 4)
	if c.systemInstruction != "" {
		items = append(items, responses.ResponseInputItemParamOfMessage(c.systemInstruction, responses.EasyInputMessageRoleSystem))
	}
	return items
}

func (c *Client) respond(ctx context.Context, items responses.ResponseInputParam) (string, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	})
	if err != nil {
		return "", toStatusError(err)
	}
	return resp.OutputText(), nil
}

func dataURL(img imaging.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func toStatusError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &HTTPStatusError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return fmt.Errorf("openai: request failed: %w", err)
}
