package plant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"

	"github.com/teslashibe/go-plantid/internal/httpc"
)

const (
	providerGemini = "gemini"

	// DefaultGeminiEndpoint is the public generateContent API base URL.
	DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiConfig configures the Gemini model.
type GeminiConfig struct {
	APIKey string
	Model  string

	// Endpoint overrides the API base URL, e.g. for tests.
	Endpoint string

	// HTTPClient is the base client; httpc.Client is used when nil.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// GeminiModel calls the Gemini generateContent REST API. The keyed HTTP
// client is built on first use so a missing key surfaces at the first call.
type GeminiModel struct {
	cfg    GeminiConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewGeminiModel creates a Gemini model. It never fails; configuration
// problems are reported by Generate.
func NewGeminiModel(cfg GeminiConfig) *GeminiModel {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpc.Client
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGeminiEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeminiModel{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "plant.gemini"),
	}
}

// Name returns the configured model name.
func (g *GeminiModel) Name() string {
	return g.cfg.Model
}

// Generate sends the prompt and inline image and returns the reply text.
func (g *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	client, err := g.httpClient()
	if err != nil {
		return "", err
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiBlob{
					MimeType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", providerGemini, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: %w", providerGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	g.logger.Debug("sending request to Gemini",
		"model", g.cfg.Model,
		"image_bytes", len(req.Image),
		"mime", req.MIMEType,
	)

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: generate content: %w", providerGemini, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", parseError(resp)
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", providerGemini, err)
	}

	if result.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%s: prompt blocked: %s", providerGemini, result.PromptFeedback.BlockReason)
	}
	if len(result.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()

	g.logger.Debug("received response from Gemini",
		"finish_reason", result.Candidates[0].FinishReason,
		"chars", len(text),
	)
	return text, nil
}

// Close releases idle connections.
func (g *GeminiModel) Close() error {
	g.cfg.HTTPClient.CloseIdleConnections()
	return nil
}

func (g *GeminiModel) url() string {
	return strings.TrimRight(g.cfg.Endpoint, "/") + "/" + modelResource(g.cfg.Model) + ":generateContent"
}

func (g *GeminiModel) httpClient() (*http.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	if g.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	// The key travels in a header so it never shows up in logged URLs.
	base := g.cfg.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	g.client = &http.Client{
		Timeout:   g.cfg.HTTPClient.Timeout,
		Transport: &apiKeyTransport{key: g.cfg.APIKey, base: base},
	}
	return g.client, nil
}

// parseError reads a non-2xx reply into an APIError.
func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Provider: providerGemini}

	var gErr *googleapi.Error
	if errors.As(googleapi.CheckResponse(resp), &gErr) {
		apiErr.Message = gErr.Message
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(gErr.Body)
		}
		if len(gErr.Errors) > 0 {
			apiErr.Code = gErr.Errors[0].Reason
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func modelResource(name string) string {
	if strings.HasPrefix(name, "models/") {
		return name
	}
	return "models/" + name
}

type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-goog-api-key", t.key)
	return t.base.RoundTrip(r)
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// geminiResponse is the generateContent response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Verify GeminiModel implements Model at compile time.
var _ Model = (*GeminiModel)(nil)
