package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/common/metrics"
	pkgerrors "codejudge/pkg/errors"
)

const maxResponseBytes = 8 << 20

// Config holds Judge0 connection and grading settings.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	APIHost        string        `yaml:"apiHost"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	Poll           PollConfig    `yaml:"poll"`
	MaxConcurrent  int           `yaml:"maxConcurrent"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
}

// ApplyDefaults fills zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 32
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 2 * time.Second
	}
	c.Poll.ApplyDefaults()
}

// Client talks to the Judge0 batch endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
}

// NewClient builds a client; a nil httpClient gets one with cfg.RequestTimeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("judge0 baseURL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge0 baseURL: %w", err)
	}
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		apiHost:    cfg.APIHost,
		httpClient: httpClient,
	}, nil
}

type batchRequest struct {
	Submissions []BatchItem `json:"submissions"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type batchResultResponse struct {
	Submissions []Result `json:"submissions"`
}

// SubmitBatch sends all items in one request and returns one token per item, in order.
// Any transport, status or shape failure fails the whole batch.
func (c *Client) SubmitBatch(ctx context.Context, items []BatchItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(batchRequest{Submissions: items})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.JudgeSystemError, "encode judge batch failed")
	}

	endpoint := c.baseURL + "/submissions/batch?base64_encoded=false"
	var resp []tokenResponse
	if err := c.do(ctx, "submit_batch", http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp) != len(items) {
		return nil, pkgerrors.Newf(pkgerrors.JudgeUnavailable, "judge returned %d tokens for %d items", len(resp), len(items))
	}
	tokens := make([]string, len(resp))
	for i, item := range resp {
		if item.Token == "" {
			return nil, pkgerrors.Newf(pkgerrors.JudgeUnavailable, "judge rejected batch item %d", i)
		}
		tokens[i] = item.Token
	}
	return tokens, nil
}

// FetchBatch fetches the current state of every token in one request.
// The judge may answer in any order; callers match results by token.
func (c *Client) FetchBatch(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("base64_encoded", "false")
	q.Set("fields", "*")
	endpoint := c.baseURL + "/submissions/batch?" + q.Encode()

	var resp batchResultResponse
	if err := c.do(ctx, "fetch_batch", http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Submissions, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out interface{}) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.JudgeRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		outcome = "error"
		return pkgerrors.Wrapf(err, pkgerrors.JudgeSystemError, "build judge request failed")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.apiHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.apiHost)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "transport"
		return pkgerrors.Wrapf(err, pkgerrors.JudgeUnavailable, "judge %s failed", op)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		outcome = "transport"
		return pkgerrors.Wrapf(err, pkgerrors.JudgeUnavailable, "read judge %s response failed", op)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		outcome = "http_" + strconv.Itoa(res.StatusCode)
		return pkgerrors.Newf(pkgerrors.JudgeUnavailable, "judge %s returned %d", op, res.StatusCode).
			WithDetail("status", res.StatusCode).
			WithDetail("body", truncate(string(data), 256))
	}
	if err := json.Unmarshal(data, out); err != nil {
		outcome = "decode"
		return pkgerrors.Wrapf(err, pkgerrors.JudgeUnavailable, "decode judge %s response failed", op)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
