package completion

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"doni-bot/internal/prompt"
)

// OpenAIClient sends the conversation as a structured message list to an
// OpenAI-compatible Chat Completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	opts   Options
}

func NewOpenAI(opts Options) *OpenAIClient {
	opts = opts.withDefaults()
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(opts.httpClient()),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withTrailingSlash(opts.BaseURL)))
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, conv prompt.Conversation) Result {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(toOpenAIMessages(conv.Messages())),
		Model:       openai.F(openai.ChatModel(c.opts.Model)),
		MaxTokens:   openai.F(int64(c.opts.MaxTokens)),
		Temperature: openai.F(c.opts.Temperature),
		TopP:        openai.F(c.opts.TopP),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return classifyOpenAIError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return failure(KindEmpty, BackendOpenAI, 0, errors.New("no choices in response"))
	}
	return success(resp.Choices[0].Message.Content, BackendOpenAI)
}

func toOpenAIMessages(messages []prompt.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case prompt.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case prompt.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func classifyOpenAIError(err error) Result {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return failure(KindStatus, BackendOpenAI, apiErr.StatusCode, err)
	}
	if isTransportError(err) {
		return failure(KindTransport, BackendOpenAI, 0, err)
	}
	return failure(KindMalformed, BackendOpenAI, 0, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func withTrailingSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
