// Package genai talks to the Gemini generateContent REST endpoint. It backs
// both riddle generation and photo evaluation.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/stampquest/internal/stampquest"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"

	maxResponseBytes = 1 << 20
)

// Client implements stampquest.RiddleGenerator and stampquest.ImageEvaluator.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ stampquest.RiddleGenerator = (*Client)(nil)
	_ stampquest.ImageEvaluator  = (*Client)(nil)
)

func New(apiKey, model, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GenerateRiddle asks the model for a short riddle that hints at placeName
// without naming it.
func (c *Client) GenerateRiddle(ctx context.Context, placeName, category string) (string, error) {
	prompt := fmt.Sprintf(
		"Write a short, cryptic riddle (at most three lines) that leads a city explorer to %q, a %s. "+
			"Do not mention the name. Reply with the riddle only.",
		placeName, category)

	text, err := c.generate(ctx, generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: 0.9, MaxOutputTokens: 256},
	})
	if err != nil {
		return "", err
	}
	riddle := strings.TrimSpace(text)
	if riddle == "" {
		return "", fmt.Errorf("%w: empty riddle", stampquest.ErrCapability)
	}
	return riddle, nil
}

// EvaluateImage asks whether the photo shows placeName. Only a reply that
// starts with YES counts as affirmative.
func (c *Client) EvaluateImage(ctx context.Context, image []byte, placeName string) (stampquest.Verdict, error) {
	prompt := fmt.Sprintf(
		"Does this photo show %q? Answer with a single word: YES or NO.", placeName)

	text, err := c.generate(ctx, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{
			{Text: prompt},
			{InlineData: &inlineData{
				MimeType: http.DetectContentType(image),
				Data:     base64.StdEncoding.EncodeToString(image),
			}},
		}}},
		GenerationConfig: generationConfig{Temperature: 0, MaxOutputTokens: 8},
	})
	if err != nil {
		return stampquest.VerdictNegative, err
	}
	return parseVerdict(text), nil
}

// parseVerdict accepts only a bare YES. Case, markdown emphasis and
// trailing punctuation are ignored; anything else is negative.
func parseVerdict(text string) stampquest.Verdict {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, "*_`\"' ")
	s = strings.TrimRight(s, ".!")
	s = strings.Trim(s, "*_`\"' ")
	if strings.EqualFold(s, "yes") {
		return stampquest.VerdictAffirmative
	}
	return stampquest.VerdictNegative
}

func (c *Client) generate(ctx context.Context, body generateRequest) (string, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", stampquest.ErrCapability, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini request: %v", stampquest.ErrCapability, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", stampquest.ErrCapability, err)
	}
	c.logger.Debug("gemini call", "model", c.model, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: gemini status %d: %s", stampquest.ErrCapability, resp.StatusCode, truncate(string(raw), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", stampquest.ErrCapability, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: gemini error: %s", stampquest.ErrCapability, out.Error.Message)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", stampquest.ErrCapability)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
