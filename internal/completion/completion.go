// Package completion talks to the external text-generation services.
// Every call yields a Result; transport and service failures never escape
// as errors, they are reported as a typed Failure instead.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"doni-bot/internal/prompt"
)

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Completer produces a reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, conv prompt.Conversation) Result
}

// Options tune a completion backend.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
	// HTTPClient overrides the transport; its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// DefaultOptions mirrors the production sampling settings.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   500,
		Temperature: 0.8,
		TopP:        0.95,
		Timeout:     60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	o.BaseURL = strings.TrimSpace(o.BaseURL)
	return o
}

func (o Options) httpClient() *http.Client {
	c := &http.Client{}
	if o.HTTPClient != nil {
		clone := *o.HTTPClient
		c = &clone
	}
	c.Timeout = o.Timeout
	return c
}

// New returns the completer of the named backend. An empty API key yields
// a completer that fails every call with KindUnconfigured.
func New(backend string, opts Options) (Completer, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	switch backend {
	case BackendOpenAI, BackendGemini:
	default:
		return nil, fmt.Errorf("unknown completion backend %q", backend)
	}

	if strings.TrimSpace(opts.APIKey) == "" {
		return Unconfigured{Backend: backend}, nil
	}

	if backend == BackendGemini {
		return NewGemini(opts), nil
	}
	return NewOpenAI(opts), nil
}

// Kind classifies completion failures.
type Kind string

const (
	KindTransport    Kind = "transport"
	KindStatus       Kind = "status"
	KindMalformed    Kind = "malformed"
	KindEmpty        Kind = "empty"
	KindUnconfigured Kind = "unconfigured"
)

// Failure describes why a completion produced no text.
type Failure struct {
	Kind       Kind
	Backend    string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", f.Backend, f.Kind)
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", f.StatusCode)
	}
	if f.Err != nil {
		msg += ": " + truncate(f.Err.Error(), 300)
	}
	return msg
}

func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Result is either the reply text or a Failure.
type Result struct {
	Text    string
	Failure *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

// Reply is the text shown to the user: the completion itself or a short
// diagnostic.
func (r Result) Reply() string {
	if r.Failure != nil {
		return "Ошибка GPT: " + r.Failure.Error()
	}
	return r.Text
}

func success(text string, backend string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return failure(KindEmpty, backend, 0, errors.New("empty model response"))
	}
	return Result{Text: text}
}

func failure(kind Kind, backend string, status int, err error) Result {
	return Result{Failure: &Failure{Kind: kind, Backend: backend, StatusCode: status, Err: err}}
}

// Unconfigured is used when the backend credential is missing.
type Unconfigured struct {
	Backend string
}

func (u Unconfigured) Complete(context.Context, prompt.Conversation) Result {
	return failure(KindUnconfigured, u.Backend, 0, errors.New("API key is not configured"))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "…"
}
