package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/spherical/alttext/internal/domain"
)

const (
	openRouterURL          = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "google/gemini-2.5-flash"
)

// OpenRouterBackend calls an OpenAI-compatible chat completions endpoint.
type OpenRouterBackend struct {
	baseURL     string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

// contentPart is either a text prompt or an inline image.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenRouterBackend creates an OpenRouter backend.
func NewOpenRouterBackend(cfg BackendConfig) *OpenRouterBackend {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openRouterURL
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "gemini-") {
		model = openRouterDefaultModel
	}
	return &OpenRouterBackend{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxOutputTokens,
		httpClient:  cfg.httpClient(),
	}
}

// Name implements Backend.
func (b *OpenRouterBackend) Name() string {
	return "openrouter"
}

// Describe implements Backend.
func (b *OpenRouterBackend) Describe(ctx context.Context, cred domain.Credential, req Request) (string, error) {
	dataURI := "data:" + req.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	body, err := json.Marshal(chatRequest{
		Model: b.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		Temperature: b.temperature,
		TopP:        b.topP,
		MaxTokens:   b.maxTokens,
	})
	if err != nil {
		return "", domain.PermanentError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", domain.PermanentError("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/spherical/alttext")
	httpReq.Header.Set("X-Title", "Alt Text Generator")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.TransientError("failed to send request", err)
	}
	defer resp.Body.Close()

	// OpenRouter answers 403 when a moderated model flags the input
	if resp.StatusCode == http.StatusForbidden {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.BlockedError(moderationReason(msg))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.TransientError("failed to decode response", err)
	}
	if out.Error != nil {
		if shouldRetry(out.Error.Code) {
			return "", domain.TransientError(out.Error.Message, nil)
		}
		return "", domain.PermanentError(out.Error.Message, nil)
	}
	if len(out.Choices) == 0 {
		return "", domain.PermanentError("response has no choices", nil)
	}

	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", domain.BlockedError("content_filter")
	}
	return choice.Message.Content, nil
}

func moderationReason(body []byte) string {
	var out chatResponse
	if err := json.Unmarshal(body, &out); err == nil && out.Error != nil && out.Error.Message != "" {
		return out.Error.Message
	}
	return "flagged by moderation"
}
