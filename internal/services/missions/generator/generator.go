// Package generator produces mission content from an OpenAI-compatible
// chat-completions endpoint.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

// Provider names a preset endpoint and default model.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
	ProviderStatic Provider = "static"
)

// ErrMalformedOutput reports a model response that does not decode into
// complete mission content.
var ErrMalformedOutput = errors.New("generator output is malformed")

// ErrMissingAPIKey reports a remote provider configured without credentials.
var ErrMissingAPIKey = errors.New("generator api key is required")

type preset struct {
	baseURL string
	model   string
}

var presets = map[Provider]preset{
	ProviderGroq:   {baseURL: "https://api.groq.com/openai/v1", model: "llama-3.3-70b-versatile"},
	ProviderGemini: {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", model: "gemini-1.5-flash"},
	ProviderOpenAI: {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
}

const temperature = 0.8

const systemPrompt = `You are The Chaos Architect, a mischievous AI that invents fun, fictional web development challenges for students.
Generate a simple, humorous scenario about everyday technology gone wrong.

The technical task MUST be:
- Web development focused (frontend and backend)
- Nonsensical and funny in tone
- Achievable with common web technologies
- Small in scope: 2-3 Core Features and 1-2 Optional Features

Respond with a single JSON object in exactly this shape:
{
  "title": "Operation [Catchy Name]",
  "lore": "1-2 simple sentences describing the funny situation",
  "antagonist": "Brief description of what is causing the problem",
  "task": "Description of the app to build. Explicitly list 'Core Features' and 'Optional Features' in the text.",
  "tech_stack": "Real web technologies only (React, Node.js, Express, AI SDKs, etc.)"
}`

const userPrompt = "Generate a new chaos mission."

// Config selects the provider and credentials for a Client.
type Config struct {
	Provider Provider
	APIKey   string
	// BaseURL overrides the provider preset endpoint.
	BaseURL string
	// Model overrides the provider preset model.
	Model      string
	HTTPClient *http.Client
}

// Client generates missions through a chat-completions API. Each Generate call
// is a single attempt; retries are disabled on the underlying SDK client.
type Client struct {
	api      openai.Client
	model    string
	provider Provider
}

// ParseProvider resolves a configured provider name; blank selects groq.
func ParseProvider(raw string) (Provider, error) {
	switch provider := Provider(strings.ToLower(strings.TrimSpace(raw))); provider {
	case "":
		return ProviderGroq, nil
	case ProviderGroq, ProviderGemini, ProviderOpenAI, ProviderStatic:
		return provider, nil
	default:
		return "", fmt.Errorf("unknown generator provider %q", raw)
	}
}

// New builds a chat-completions client for cfg.
func New(cfg Config) (*Client, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, err
	}
	p, ok := presets[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q has no remote endpoint", provider)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = p.baseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = p.model
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{
		api:      openai.NewClient(opts...),
		model:    model,
		provider: provider,
	}, nil
}

// Model returns the model name requests are sent with.
func (c *Client) Model() string {
	return c.model
}

// Generate requests one mission from the model.
func (c *Client) Generate(ctx context.Context) (mission.Content, error) {
	if c == nil {
		return mission.Content{}, fmt.Errorf("generator is not configured")
	}
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return mission.Content{}, fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return mission.Content{}, fmt.Errorf("%w: no choices returned", ErrMalformedOutput)
	}
	return ParseContent(resp.Choices[0].Message.Content)
}

type wireContent struct {
	Title      string `json:"title"`
	Lore       string `json:"lore"`
	Antagonist string `json:"antagonist"`
	Task       string `json:"task"`
	TechStack  string `json:"tech_stack"`
	// Some models answer with camelCase despite the prompt.
	TechStackCamel string `json:"techStack"`
}

// ParseContent decodes model output into mission content. Markdown code fences
// around the JSON object are tolerated.
func ParseContent(raw string) (mission.Content, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return mission.Content{}, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	var wire wireContent
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return mission.Content{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	techStack := wire.TechStack
	if strings.TrimSpace(techStack) == "" {
		techStack = wire.TechStackCamel
	}
	content, err := mission.Content{
		Title:      wire.Title,
		Lore:       wire.Lore,
		Antagonist: wire.Antagonist,
		Task:       wire.Task,
		TechStack:  techStack,
	}.Normalize()
	if err != nil {
		return mission.Content{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return content, nil
}

func stripCodeFence(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		// Drop the info string, e.g. ```json.
		body = body[newline+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
