package jobs

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

// Optimizer applies a priority override on the target platform. The endpoint
// contract is idempotent: applying the same override twice is a no-op, which
// is what lets the worker retry after a crash between apply and mark-done.
type Optimizer interface {
	ApplyPriority(ctx context.Context, platform string, newPriority float64) error
}

type OptimizerClientOptions struct {
	URL        string
	HTTPClient *http.Client
}

type HTTPOptimizerClient struct {
	url        string
	httpClient *http.Client
}

func NewHTTPOptimizerClient(opts OptimizerClientOptions) (*HTTPOptimizerClient, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		return nil, ErrInvalidInput
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPOptimizerClient{url: endpoint, httpClient: httpClient}, nil
}

func (c *HTTPOptimizerClient) ApplyPriority(ctx context.Context, platform string, newPriority float64) error {
	payload, err := json.Marshal(map[string]any{
		"platform":    platform,
		"newPriority": newPriority,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("optimizer call failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
}
