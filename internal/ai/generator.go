// Package ai turns thread context into reply text through an
// OpenAI-compatible chat-completion endpoint. One request per call, no
// silent retries: repeated generation calls cost money, so the caller
// decides whether to try again.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

const systemPrompt = "你是一个乐于助人的中文论坛用户。"

// Options configures the chat-completion backend
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator is a stateless chat-completion client
type Generator struct {
	http *http.Client
	opts Options
}

// New creates a Generator. An empty base URL targets the OpenAI API; any
// gateway speaking the same request shape works.
func New(opts Options) *Generator {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 200
	}
	return &Generator{
		http: &http.Client{Timeout: 60 * time.Second},
		opts: opts,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate composes a short reply for the given thread context
func (g *Generator) Generate(ctx context.Context, contextText string) (string, error) {
	prompt := "请根据下述帖子内容，以自然、友好的语气生成一条简短中文回复。" +
		"避免违禁词、避免重复、避免灌水口水话，最多100字。\n\n" +
		"帖子内容：\n" + contextText + "\n\n回复："

	body, err := json.Marshal(chatRequest{
		Model: g.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.opts.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.opts.APIKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("generate: backend returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("generate: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("generate: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("generate: empty choice list")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("generate: blank completion")
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
