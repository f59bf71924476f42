package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"FilingMonitor/internal/config"
	"FilingMonitor/internal/domain"
	"FilingMonitor/internal/logging"
	"FilingMonitor/internal/ports"
	"FilingMonitor/pkg/retry"
)

const defaultSystemPrompt = "You analyse Canadian energy regulatory filings. " +
	"Summarise the filing, name the parties and proceeding, and list any deadlines or decisions."

// ErrNotConfigured is returned when the endpoint, key or model is missing.
var ErrNotConfigured = errors.New("analysis client misconfigured")

// Analyzer implements ports.Analyzer backed by an OpenAI-compatible chat API.
type Analyzer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	retry        retry.Policy
	logger       *slog.Logger
}

var _ ports.Analyzer = (*Analyzer)(nil)

// NewAnalyzer builds a client from configuration.
func NewAnalyzer(cfg config.AnalysisConfig, logger *slog.Logger) *Analyzer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Analyzer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
		retry:        retry.Policy{Attempts: 2, Base: 5 * time.Second, Max: 30 * time.Second},
		logger:       logging.OrDiscard(logger),
	}
}

// Configured reports whether the client can send requests.
func (c *Analyzer) Configured() bool {
	return c != nil && c.apiKey != "" && c.endpoint != "" && c.model != ""
}

// Analyze posts the filing metadata and its assembled text as one chat turn.
func (c *Analyzer) Analyze(ctx context.Context, filing domain.Filing, text string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": userMessage(filing, text)},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal analysis payload: %w", err)
	}

	var reply chatResponse
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		reply, err = c.post(ctx, body)
		return err
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("analysis request failed, retrying", "filing_id", filing.ID, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return fmt.Errorf("analyze filing %s: %w", filing.ID, err)
	}
	if len(reply.Choices) == 0 || strings.TrimSpace(reply.Choices[0].Message.Content) == "" {
		return fmt.Errorf("analyze filing %s: empty response", filing.ID)
	}

	c.logger.Info("filing analyzed", "filing_id", filing.ID, "response_chars", len(reply.Choices[0].Message.Content))
	return nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Analyzer) post(ctx context.Context, body []byte) (chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("send analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("analysis endpoint error", "status", resp.Status, "body", strings.TrimSpace(string(payload)))
		return chatResponse{}, retry.NewStatusError(resp)
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return chatResponse{}, retry.Permanent(fmt.Errorf("decode analysis response: %w", err))
	}
	return reply, nil
}

func userMessage(f domain.Filing, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filing ID: %s\n", f.ID)
	if f.HasDate() {
		fmt.Fprintf(&b, "Date: %s\n", f.Date.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Applicant: %s\n", f.Applicant)
	fmt.Fprintf(&b, "Type: %s\n", f.Category)
	if f.Proceeding != "" {
		fmt.Fprintf(&b, "Proceeding: %s\n", f.Proceeding)
	}
	if f.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", f.Title)
	}
	if f.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", f.URL)
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
