// Package aiprovider implements the ai.Provider port with an HTTP client
// speaking an OpenAI-compatible chat-completions API. The provider itself
// (model, endpoint, credentials) is an external collaborator; this adapter
// is the thin, swappable client that reaches it.
package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/port/ai"
	"github.com/contextengine/retrieval/internal/resilience"
)

// Client talks to an OpenAI-compatible chat-completions endpoint to fulfill
// enrichment jobs.
type Client struct {
	baseURL        string
	apiKey         string
	modelName      string
	thinkingBudget int
	httpClient     *http.Client
	breaker        *resilience.Breaker
}

// NewClient creates a Client targeting baseURL with the given model name and
// thinking-token budget (AI_MODEL_NAME / AI_THINKING_BUDGET).
func NewClient(baseURL, apiKey, modelName string, thinkingBudget int) *Client {
	return &Client{
		baseURL:        baseURL,
		apiKey:         apiKey,
		modelName:      modelName,
		thinkingBudget: thinkingBudget,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ThinkingBudget int           `json:"thinking_budget,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// EnrichEntitySummaryKeywords asks the provider for a summary and a keyword
// list for one code entity or project document.
func (c *Client) EnrichEntitySummaryKeywords(ctx context.Context, req ai.EntityEnrichmentRequest) (ai.EntityEnrichmentResult, error) {
	prompt := fmt.Sprintf(
		"Summarize the following %s content in one paragraph and extract up to 10 keywords.\n"+
			"Respond as JSON: {\"summary\": string, \"keywords\": string[]}.\n\n%s",
		req.Language, req.Content)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return ai.EntityEnrichmentResult{}, err
	}

	var parsed struct {
		Summary  string   `json:"summary"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ai.EntityEnrichmentResult{}, fmt.Errorf("%w: %v", job.ErrPayloadParse, err)
	}

	return ai.EntityEnrichmentResult{Summary: parsed.Summary, Keywords: parsed.Keywords}, nil
}

// GenerateTopics asks the provider to distill a conversation's messages into
// topic summaries with keywords.
func (c *Client) GenerateTopics(ctx context.Context, req ai.TopicGenerationRequest) ([]ai.GeneratedTopic, error) {
	var transcript bytes.Buffer
	for _, m := range req.Messages {
		transcript.WriteString(m)
		transcript.WriteString("\n---\n")
	}

	prompt := "Identify the distinct topics discussed in this conversation transcript. " +
		"Respond as JSON: {\"topics\": [{\"summary\": string, \"keywords\": string[]}]}.\n\n" +
		transcript.String()

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Topics []struct {
			Summary  string   `json:"summary"`
			Keywords []string `json:"keywords"`
		} `json:"topics"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", job.ErrPayloadParse, err)
	}

	out := make([]ai.GeneratedTopic, 0, len(parsed.Topics))
	for _, t := range parsed.Topics {
		out = append(out, ai.GeneratedTopic{Summary: t.Summary, Keywords: t.Keywords})
	}
	return out, nil
}

// complete issues one chat-completion call and returns the assistant
// message content, translating transport/HTTP failures into the job
// package's sentinel error kinds.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:          c.modelName,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ThinkingBudget: c.thinkingBudget,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	var result string
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return &job.ProviderError{Err: fmt.Errorf("create request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &job.ProviderError{Err: fmt.Errorf("http request: %w", err)}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &job.ProviderError{Err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			return &job.RateLimitError{RetryAfter: retryAfter, Err: fmt.Errorf("rate limited: %s", string(data))}
		}
		if resp.StatusCode >= 500 {
			return &job.ProviderError{Err: fmt.Errorf("provider error %d: %s", resp.StatusCode, string(data))}
		}
		if resp.StatusCode >= 400 {
			return &job.ProviderError{Err: fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(data))}
		}

		var parsed chatCompletionResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("%w: %v", job.ErrPayloadParse, err)
		}
		if len(parsed.Choices) == 0 {
			return &job.ProviderError{Err: fmt.Errorf("empty completion response")}
		}
		result = parsed.Choices[0].Message.Content
		return nil
	}

	var runErr error
	if c.breaker != nil {
		runErr = c.breaker.Execute(call)
	} else {
		runErr = call()
	}
	if runErr != nil {
		if errors.Is(runErr, resilience.ErrCircuitOpen) {
			runErr = &job.ProviderError{Err: runErr}
		}
		return "", runErr
	}
	return result, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
