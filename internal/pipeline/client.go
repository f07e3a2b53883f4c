package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// chatClient is the shared plumbing for OpenAI-style chat completion
// endpoints. Both pipeline model adapters wrap one.
type chatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

// complete POSTs a chat completion request to baseURL+path and returns the
// first choice's content plus token usage.
func (c *chatClient) complete(ctx context.Context, path string, messages []chatMessage, temperature float64) (string, chatUsage, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", chatUsage{}, errors.Wrap(err, "marshaling chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", chatUsage{}, errors.Wrap(err, "building chat request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", chatUsage{}, errors.Wrap(err, "calling model endpoint")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", chatUsage{}, errors.Wrap(err, "reading model response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", chatUsage{}, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", chatUsage{}, errors.Wrap(err, "decoding model response")
	}
	if len(parsed.Choices) == 0 {
		return "", chatUsage{}, fmt.Errorf("model response has no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage, nil
}

var (
	thinkTagRe   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON cleans a model completion down to a raw JSON string: reasoning
// tags and markdown fences are stripped, and if the remainder still does not
// start with '{' the first balanced-looking object block is taken.
func extractJSON(text string) string {
	text = strings.TrimSpace(thinkTagRe.ReplaceAllString(text, ""))

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		start := 1
		end := len(lines)
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		if start <= end {
			text = strings.Join(lines[start:end], "\n")
		}
		text = strings.TrimSpace(text)
	}

	if !strings.HasPrefix(text, "{") {
		if match := jsonObjectRe.FindString(text); match != "" {
			text = match
		}
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
