package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"gemini-qa/internal/credentials"
	"gemini-qa/internal/domain"
	"gemini-qa/internal/imaging"
	"gemini-qa/internal/stream"
)

const DefaultModel = "gemini-2.0-flash-exp"

// StatusError captures an error response from the Gemini API.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini: status %d %s: %s", e.StatusCode, e.Status, e.Message)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Gateway talks to Gemini through the genai SDK. The SDK client is built on
// the first request from the configured credential source.
type Gateway struct {
	creds             credentials.Source
	model             string
	baseURL           string
	httpClient        *http.Client
	systemInstruction string

	mu     sync.Mutex
	client *genai.Client
}

type Option func(*Gateway)

func WithModel(model string) Option {
	return func(g *Gateway) {
		if m := strings.TrimSpace(model); m != "" {
			g.model = m
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(g *Gateway) {
		g.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = httpClient
	}
}

func WithSystemInstruction(text string) Option {
	return func(g *Gateway) {
		g.systemInstruction = strings.TrimSpace(text)
	}
}

func NewGateway(creds credentials.Source, opts ...Option) (*Gateway, error) {
	if creds == nil {
		return nil, errors.New("gemini: credential source must not be nil")
	}
	g := &Gateway{
		creds: creds,
		model: DefaultModel,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) Model() string {
	return g.model
}

// models returns the SDK model service, creating the client on first use.
// A credential failure is not cached, so a key set later is picked up.
func (g *Gateway) models(ctx context.Context) (*genai.Models, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client.Models, nil
	}

	apiKey, err := g.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve API key: %w", err)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	g.client = client
	return client.Models, nil
}

// StreamChat sends the prior turns plus question and streams the reply. An
// error answered before the first fragment is returned directly.
func (g *Gateway) StreamChat(ctx context.Context, history []domain.ChatMessage, question string) (*stream.Stream, error) {
	models, err := g.models(ctx)
	if err != nil {
		return nil, err
	}
	seq := models.GenerateContentStream(ctx, g.model, chatContents(history, question), g.generateConfig())
	s, err := stream.Open(textFragments(seq))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Describe sends question and img in one request. An empty question sends the
// image alone.
func (g *Gateway) Describe(ctx context.Context, question string, img imaging.Image) (string, error) {
	models, err := g.models(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]*genai.Part, 0, 2)
	if strings.TrimSpace(question) != "" {
		parts = append(parts, genai.NewPartFromText(question))
	}
	parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := models.GenerateContent(ctx, g.model, contents, g.generateConfig())
	if err != nil {
		return "", toStatusError(err)
	}
	if resp == nil {
		return "", errors.New("gemini: empty response")
	}
	return resp.Text(), nil
}

func (g *Gateway) generateConfig() *genai.GenerateContentConfig {
	if g.systemInstruction == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.systemInstruction, genai.RoleUser),
	}
}

func chatContents(history []domain.ChatMessage, question string) []*genai.Content {
	out := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return append(out, genai.NewContentFromText(question, genai.RoleUser))
}

// textFragments turns the SDK response stream into non-empty text fragments.
func textFragments(seq iter.Seq2[*genai.GenerateContentResponse, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range seq {
			if err != nil {
				yield("", toStatusError(err))
				return
			}
			if resp == nil {
				continue
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func toStatusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}
