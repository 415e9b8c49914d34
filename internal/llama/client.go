package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

// Client issues completion and probe requests against one inference server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs a client for the server at baseURL.
func NewClient(baseURL string, connectTimeout time.Duration, logger zerolog.Logger) *Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Intentionally Timeout=0: streaming responses have no overall deadline,
	// every request carries a context instead.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: cli,
		logger:     logger.With().Str("component", "llama_client").Logger(),
	}
}

// BaseURL returns the server address this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// completionBody is the full POST /completion payload.
type completionBody struct {
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	CompletionParams
}

// unaryResponse is the single-object body of a non-streamed completion.
type unaryResponse struct {
	Content string `json:"content"`
}

func (c *Client) postCompletion(ctx context.Context, prompt string, p CompletionParams, stream bool) (*http.Response, error) {
	body, err := json.Marshal(completionBody{Prompt: prompt, Stream: stream, CompletionParams: p})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// Complete performs a unary completion. The caller receives either the full
// generated text or an error, never a partial string.
func (c *Client) Complete(ctx context.Context, prompt string, p CompletionParams) (string, error) {
	resp, err := c.postCompletion(ctx, prompt, p, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out unaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ErrStreamProtocol("unary response decode: " + err.Error())
	}
	return out.Content, nil
}

// ModelInfo fetches model metadata from GET /model. Best effort; callers only
// use the result for derived estimates.
func (c *Client) ModelInfo(ctx context.Context) (*types.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/model", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	var info types.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}
