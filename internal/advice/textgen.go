package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kjstillabower/weather-advisor-service/internal/models"
	"github.com/kjstillabower/weather-advisor-service/internal/observability"
)

// Sampling parameters for the completion request. Fixed policy.
const (
	completionMaxTokens   = 150
	completionTemperature = 0.6
)

var (
	// ErrBadStatus wraps a non-2xx completion response.
	ErrBadStatus = errors.New("text generation bad status")
	// ErrEmptyCompletion marks a 2xx response with no extractable advice text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// CompletionClient produces free text from a prompt. Implemented by the HTTP
// client below; the generator falls back to the rule engine on any error.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TextGenClient calls an OpenAI-compatible chat-completions endpoint.
type TextGenClient struct {
	apiKey string
	apiURL string
	model  string
	client *http.Client
}

// NewTextGenClient creates a TextGenClient.
func NewTextGenClient(apiKey, apiURL, model string, timeout time.Duration) (*TextGenClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("text generation API key is required")
	}
	return &TextGenClient{
		apiKey: apiKey,
		apiURL: apiURL,
		model:  model,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
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
}

// Complete sends the prompt and returns the completion text. A non-2xx
// status returns ErrBadStatus; a 2xx body with no content returns
// ErrEmptyCompletion.
func (c *TextGenClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		observability.TextGenDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.TextGenDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}
	observability.TextGenDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion body: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse completion response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// buildPrompt embeds the location, current conditions and a forecast summary
// into a short instruction for the completion service.
func buildPrompt(w models.NormalizedWeather) string {
	var b strings.Builder
	b.WriteString("You are a weather advisor. Given the conditions below, reply with 3-4 short practical tips, one per line, no numbering.\n\n")

	b.WriteString("Location: ")
	b.WriteString(w.Location.Name)
	if w.Location.State != "" {
		b.WriteString(", " + w.Location.State)
	}
	if w.Location.Country != "" {
		b.WriteString(", " + w.Location.Country)
	}
	b.WriteString("\nCurrent: ")
	if w.Current.Description != "" {
		b.WriteString(w.Current.Description)
	} else {
		b.WriteString("unknown conditions")
	}
	writeMetric(&b, ", temp %.1fC", w.Current.Temp)
	writeMetric(&b, ", feels like %.1fC", w.Current.FeelsLike)
	writeMetric(&b, ", humidity %.0f%%", w.Current.Humidity)
	writeMetric(&b, ", wind %.1f m/s", w.Current.WindSpeed)

	if len(w.Forecast) > 0 {
		b.WriteString("\nForecast:")
		for _, day := range w.Forecast {
			b.WriteString("\n  " + day.Day + ": ")
			if day.Description != "" {
				b.WriteString(day.Description)
			} else {
				b.WriteString("n/a")
			}
			writeMetric(&b, ", %.1fC", day.Temp)
			fmt.Fprintf(&b, ", rain chance %d%%", int(day.Pop*100))
		}
	}
	return b.String()
}

func writeMetric(b *strings.Builder, format string, v *float64) {
	if v != nil {
		fmt.Fprintf(b, format, *v)
	}
}
