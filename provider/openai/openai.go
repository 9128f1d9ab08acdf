package openai_provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/httpclient"
	"github.com/mohammad-safakhou/researcher/utils"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Options configures a Client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

// Client talks to the chat completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	http        *httpclient.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:      opts.APIKey,
		baseURL:     base,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		http:        httpclient.New(opts.Timeout, opts.MaxRetries, 0),
	}
}

func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	return c.sendRequest(ctx, messages(system, user), false)
}

// ChatJSON requests JSON mode and decodes the first JSON object of the reply.
func (c *Client) ChatJSON(ctx context.Context, system, user string, out any) error {
	content, err := c.sendRequest(ctx, messages(system, user), true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(utils.ExtractFirstJSON(content)), out); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

func messages(system, user string) []Message {
	var out []Message
	if system != "" {
		out = append(out, Message{Role: "system", Content: system})
	}
	return append(out, Message{Role: "user", Content: user})
}

// sendRequest sends a request to the OpenAI API
func (c *Client) sendRequest(ctx context.Context, msgs []Message, jsonMode bool) (string, error) {
	body := request{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp response
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty completion (finish_reason=%s)", resp.Choices[0].FinishReason)
	}
	return content, nil
}
