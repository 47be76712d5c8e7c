package jobs

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

	"github.com/pkg/errors"
)

type RESTStoreOptions struct {
	BaseURL    string
	ServiceKey string
	HTTPClient *http.Client
}

// RESTStore speaks the PostgREST-style surface the hosted datastore exposes:
// an enqueue procedure plus filtered reads and conditional patches on the
// priority_jobs table. Lost races surface as an empty returned representation.
type RESTStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewRESTStore(opts RESTStoreOptions) (*RESTStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrInvalidInput
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTStore{
		baseURL:    baseURL,
		serviceKey: strings.TrimSpace(opts.ServiceKey),
		httpClient: httpClient,
	}, nil
}

func (s *RESTStore) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	body, err := s.do(ctx, http.MethodPost, "/rpc/enqueue_priority_job", nil, req)
	if err != nil {
		return "", err
	}
	return parseEnqueueResponse(body)
}

func parseEnqueueResponse(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	var asString string
	if json.Unmarshal(trimmed, &asString) == nil && asString != "" {
		return asString, nil
	}
	var asObject struct {
		JobID string `json:"jobId"`
		ID    string `json:"id"`
	}
	if json.Unmarshal(trimmed, &asObject) == nil {
		if asObject.JobID != "" {
			return asObject.JobID, nil
		}
		if asObject.ID != "" {
			return asObject.ID, nil
		}
	}
	return "", fmt.Errorf("enqueue rpc returned unexpected body: %s", trimmed)
}

func (s *RESTStore) ListQueued(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("status", "eq.queued")
	params.Set("order", "created_at.asc")
	params.Set("limit", strconv.Itoa(limit))
	body, err := s.do(ctx, http.MethodGet, "/priority_jobs", params, nil)
	if err != nil {
		return nil, err
	}
	var out []Job
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "decode queued jobs")
	}
	return out, nil
}

func (s *RESTStore) Transition(ctx context.Context, id string, from, to Status, patch TransitionPatch) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrInvalidInput
	}
	params := url.Values{}
	params.Set("id", "eq."+id)
	params.Set("status", "eq."+string(from))

	update := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if patch.Attempts != nil {
		update["attempts"] = *patch.Attempts
	}
	if patch.LastError != nil {
		update["last_error"] = *patch.LastError
	}
	body, err := s.do(ctx, http.MethodPatch, "/priority_jobs", params, update)
	if err != nil {
		return false, err
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, errors.Wrap(err, "decode transition result")
	}
	return len(rows) > 0, nil
}

func (s *RESTStore) Get(ctx context.Context, id string) (Job, error) {
	params := url.Values{}
	params.Set("id", "eq."+id)
	params.Set("limit", "1")
	body, err := s.do(ctx, http.MethodGet, "/priority_jobs", params, nil)
	if err != nil {
		return Job{}, err
	}
	var rows []Job
	if err := json.Unmarshal(body, &rows); err != nil {
		return Job{}, errors.Wrap(err, "decode job row")
	}
	if len(rows) == 0 {
		return Job{}, ErrNotFound
	}
	return rows[0], nil
}

func (s *RESTStore) Close() error { return nil }

func (s *RESTStore) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.serviceKey != "" {
		req.Header.Set("apiKey", s.serviceKey)
	}
	if method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "job store %s %s", method, path)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read job store response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("job store %s %s failed: status=%d body=%s",
			method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
