package feedback

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

// ScoreBundle is the quality assessment returned by the analyzer.
type ScoreBundle struct {
	Empathy             float64  `json:"empathy"`
	CulturalSensitivity float64  `json:"cultural_sensitivity"`
	Helpfulness         float64  `json:"helpfulness"`
	Flags               []string `json:"flags,omitempty"`
}

// StatusError is a non-2xx answer from the analyzer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analyzer: status %d: %s", e.Code, e.Body)
}

// Temporary reports whether repeating the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client отправляет ответы во внешний анализатор качества (best-effort, не блокирует API).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AnalyzePayload: тело POST /analyze.
type AnalyzePayload struct {
	RequestContent  string `json:"request_content"`
	ResponseContent string `json:"response_content"`
	CulturalTag     string `json:"cultural_tag,omitempty"`
}

func (c *Client) Analyze(ctx context.Context, job Job) (ScoreBundle, error) {
	body, err := json.Marshal(AnalyzePayload{
		RequestContent:  job.RequestContent,
		ResponseContent: job.ResponseContent,
		CulturalTag:     job.CulturalTag,
	})
	if err != nil {
		return ScoreBundle{}, fmt.Errorf("analyzer: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return ScoreBundle{}, fmt.Errorf("analyzer: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ScoreBundle{}, fmt.Errorf("analyzer: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ScoreBundle{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	var out ScoreBundle
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ScoreBundle{}, fmt.Errorf("analyzer: decode: %w", err)
	}
	return out, nil
}
