package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"doni-bot/internal/prompt"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient sends the conversation as one flattened prompt to the
// generateContent endpoint, with the persona as system instruction.
type GeminiClient struct {
	http *resty.Client
	opts Options
}

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
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func NewGemini(opts Options) *GeminiClient {
	opts = opts.withDefaults()
	base := opts.BaseURL
	if base == "" {
		base = defaultGeminiBaseURL
	}
	client := resty.NewWithClient(opts.httpClient()).
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-goog-api-key", opts.APIKey).
		SetTimeout(opts.Timeout)
	return &GeminiClient{http: client, opts: opts}
}

func (c *GeminiClient) Complete(ctx context.Context, conv prompt.Conversation) Result {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: conv.Flatten()}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.opts.Temperature,
			TopP:            c.opts.TopP,
			MaxOutputTokens: c.opts.MaxTokens,
		},
	}
	if conv.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: conv.System}}}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1beta/models/" + url.PathEscape(c.opts.Model) + ":generateContent")
	if err != nil {
		return failure(KindTransport, BackendGemini, 0, err)
	}
	if resp.IsError() {
		return failure(KindStatus, BackendGemini, resp.StatusCode(), errors.New(strings.TrimSpace(resp.String())))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return failure(KindMalformed, BackendGemini, 0, fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Candidates) == 0 {
		reason := "no candidates in response"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			reason += ", blocked: " + parsed.PromptFeedback.BlockReason
		}
		return failure(KindEmpty, BackendGemini, 0, errors.New(reason))
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return success(text.String(), BackendGemini)
}
