package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/erazemk/bazar/internal/model"
)

// DefaultEndpoint is the generateContent URL used when none is configured.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

// Gemini completes conversations with the Gemini generateContent API.
// Rate limiting and server errors are retried with exponential backoff.
type Gemini struct {
	client   *http.Client
	endpoint string
	apiKey   string
	logger   *slog.Logger

	maxRetries    uint64
	retryInterval time.Duration
}

// NewGemini creates a client. An empty endpoint selects DefaultEndpoint.
func NewGemini(endpoint, apiKey string, logger *slog.Logger) *Gemini {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		client:        &http.Client{Timeout: 10 * time.Second},
		endpoint:      endpoint,
		apiKey:        apiKey,
		logger:        logger,
		maxRetries:    2,
		retryInterval: 500 * time.Millisecond,
	}
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
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent        `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

var safetySettings = []geminiSafetySetting{
	{"HARM_CATEGORY_HARASSMENT", "BLOCK_MEDIUM_AND_ABOVE"},
	{"HARM_CATEGORY_HATE_SPEECH", "BLOCK_MEDIUM_AND_ABOVE"},
	{"HARM_CATEGORY_SEXUALLY_EXPLICIT", "BLOCK_MEDIUM_AND_ABOVE"},
	{"HARM_CATEGORY_DANGEROUS_CONTENT", "BLOCK_MEDIUM_AND_ABOVE"},
}

func newGeminiRequest(history []model.ChatMessage) geminiRequest {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: Instructions}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
		},
		SafetySettings: safetySettings,
	}
	for _, m := range trimHistory(history) {
		role := "user"
		if m.Role == model.ChatRoleAssistant {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return req
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, history []model.ChatMessage) (string, error) {
	body, err := json.Marshal(newGeminiRequest(history))
	if err != nil {
		return "", fmt.Errorf("encoding assistant request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, g.maxRetries), ctx)

	var reply string
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		text, err := g.generate(ctx, body)
		if err != nil {
			g.logger.WarnContext(ctx, "assistant request failed", "attempt", attempt, "error", err)
			return err
		}
		reply = text
		return nil
	}, policy)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// generate performs one API call. Errors that retrying cannot fix are
// wrapped with backoff.Permanent.
func (g *Gemini) generate(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("building assistant request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending assistant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding assistant response: %w", err))
	}
	if len(decoded.Candidates) == 0 {
		return "", backoff.Permanent(ErrEmptyReply)
	}

	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	reply := strings.TrimSpace(text.String())
	if reply == "" {
		return "", backoff.Permanent(ErrEmptyReply)
	}
	return reply, nil
}
