package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = "gemini-2.0-flash-exp"

const defaultRequestTimeout = 60 * time.Second

// modelPricing is cost per single token.
type modelPricing struct {
	input  float64
	output float64
}

var pricing = map[string]modelPricing{
	"gemini-2.0-flash-exp": {input: 0.00025 / 1000, output: 0.001 / 1000},
	"gemini-1.5-pro":       {input: 0.0035 / 1000, output: 0.014 / 1000},
}

// GeminiClient talks to a Gemini-compatible generateContent HTTP endpoint.
type GeminiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewGeminiClient creates a client for the given endpoint. The HTTP client
// carries its own timeout, independent of any retry policy above it.
func NewGeminiClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GeminiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Wire types for the generateContent API.
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Complete implements CompletionProvider.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	body := geminiRequest{
		Contents: convertMessages(req.Messages),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, completionStatusError(resp.StatusCode, raw)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("completion response contained no candidates")
	}

	usage := Usage{
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}
	completion := &Completion{
		Text:  out.Candidates[0].Content.Parts[0].Text,
		Model: model,
		Usage: usage,
		Cost:  costFor(model, usage),
	}

	c.logger.Debug("completion finished",
		"model", model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"cost", completion.Cost,
	)
	return completion, nil
}

// completionStatusError translates an HTTP status into an error whose
// message the resilience layer can classify.
func completionStatusError(status int, body []byte) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("provider rate limit exceeded (status %d): %s", status, truncate(body, 200))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("provider authentication rejected (status %d)", status)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("provider request timed out (status %d)", status)
	default:
		return fmt.Errorf("provider http error (status %d): %s", status, truncate(body, 200))
	}
}

// convertMessages flattens chat messages into Gemini contents. Gemini has
// no system role, so system content is prepended to the first user turn.
func convertMessages(messages []Message) []geminiContent {
	var out []geminiContent
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if len(out) > 0 && out[0].Role == "user" {
				out[0].Parts[0].Text = msg.Content + "\n\n" + out[0].Parts[0].Text
			} else {
				out = append([]geminiContent{{Role: "user", Parts: []geminiPart{{Text: msg.Content}}}}, out...)
			}
		case RoleAssistant:
			out = append(out, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			out = append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	return out
}

func costFor(model string, usage Usage) float64 {
	p, ok := pricing[model]
	if !ok {
		p = pricing[DefaultModel]
	}
	return float64(usage.InputTokens)*p.input + float64(usage.OutputTokens)*p.output
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

var _ CompletionProvider = (*GeminiClient)(nil)
