package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dealeriq/priorityd/internal/jobs"
)

const testSecret = "webhook_secret_123"

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(store jobs.Store) *Server {
	return NewServer(store, nil, nil, ServerConfig{
		WebhookSecret: func() string { return testSecret },
	}, nil)
}

func postApproval(t *testing.T, handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/priority/approve", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-signature", signature)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func validApprovalBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"suggestionId": "sug_1",
		"action":       "approve",
		"platform":     "google",
		"newPriority":  0.8,
		"actor":        "ops@example.com",
	})
	if err != nil {
		t.Fatalf("marshal body failed: %v", err)
	}
	return body
}

func TestApproveAcceptsSignedPayload(t *testing.T) {
	store := jobs.NewMemoryStore()
	handler := newTestServer(store).Router()
	body := validApprovalBody(t)

	recorder := postApproval(t, handler, body, signBody(testSecret, body))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", recorder.Code, recorder.Body.String())
	}
	var reply map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply failed: %v", err)
	}
	if reply["jobId"] == "" {
		t.Fatalf("expected jobId in reply, got %s", recorder.Body.String())
	}

	job, err := store.Get(context.Background(), reply["jobId"])
	if err != nil {
		t.Fatalf("expected job to be queued: %v", err)
	}
	if job.Status != jobs.StatusQueued || job.SuggestionID != "sug_1" {
		t.Fatalf("unexpected queued job: %+v", job)
	}
}

func TestApproveDuplicateDeliveryReturnsSameJob(t *testing.T) {
	store := jobs.NewMemoryStore()
	handler := newTestServer(store).Router()
	body := validApprovalBody(t)
	signature := signBody(testSecret, body)

	first := postApproval(t, handler, body, signature)
	second := postApproval(t, handler, body, signature)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected both deliveries to succeed, got %d and %d", first.Code, second.Code)
	}
	var firstReply, secondReply map[string]string
	_ = json.Unmarshal(first.Body.Bytes(), &firstReply)
	_ = json.Unmarshal(second.Body.Bytes(), &secondReply)
	if firstReply["jobId"] != secondReply["jobId"] {
		t.Fatalf("expected duplicate delivery to reuse the job, got %s and %s",
			firstReply["jobId"], secondReply["jobId"])
	}

	queued, err := store.ListQueued(context.Background(), 10)
	if err != nil {
		t.Fatalf("list queued failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("expected one queued job after duplicate delivery, got %d", len(queued))
	}
}

func TestApproveRejectsMissingSignature(t *testing.T) {
	store := jobs.NewMemoryStore()
	handler := newTestServer(store).Router()

	recorder := postApproval(t, handler, validApprovalBody(t), "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", recorder.Code)
	}
	queued, _ := store.ListQueued(context.Background(), 10)
	if len(queued) != 0 {
		t.Fatalf("expected nothing queued for unauthenticated request")
	}
}

func TestApproveRejectsBadSignature(t *testing.T) {
	store := jobs.NewMemoryStore()
	handler := newTestServer(store).Router()
	body := validApprovalBody(t)

	recorder := postApproval(t, handler, body, signBody("some_other_secret", body))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", recorder.Code)
	}
	queued, _ := store.ListQueued(context.Background(), 10)
	if len(queued) != 0 {
		t.Fatalf("expected nothing queued for bad signature")
	}
}

func TestApproveRejectsTamperedBody(t *testing.T) {
	store := jobs.NewMemoryStore()
	handler := newTestServer(store).Router()
	body := validApprovalBody(t)
	signature := signBody(testSecret, body)

	tampered := bytes.Replace(body, []byte(`"approve"`), []byte(`"reject"`), 1)
	recorder := postApproval(t, handler, tampered, signature)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered body, got %d", recorder.Code)
	}
}

func TestApproveAcceptsUppercaseSignature(t *testing.T) {
	handler := newTestServer(jobs.NewMemoryStore()).Router()
	body := validApprovalBody(t)

	recorder := postApproval(t, handler, body, strings.ToUpper(signBody(testSecret, body)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected hex case to be ignored, got %d", recorder.Code)
	}
}

func TestApproveRejectsMalformedJSON(t *testing.T) {
	handler := newTestServer(jobs.NewMemoryStore()).Router()
	body := []byte(`{"suggestionId": "sug_1",`)

	recorder := postApproval(t, handler, body, signBody(testSecret, body))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", recorder.Code)
	}
}

func TestApproveRejectsMissingFields(t *testing.T) {
	handler := newTestServer(jobs.NewMemoryStore()).Router()
	cases := []map[string]any{
		{"action": "approve", "platform": "google", "actor": "ops"},
		{"suggestionId": "sug_1", "platform": "google", "actor": "ops"},
		{"suggestionId": "sug_1", "action": "promote", "platform": "google", "actor": "ops"},
		{"suggestionId": "sug_1", "action": "approve", "actor": "ops"},
		{"suggestionId": "sug_1", "action": "approve", "platform": "google"},
	}
	for _, payload := range cases {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		recorder := postApproval(t, handler, body, signBody(testSecret, body))
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %d", payload, recorder.Code)
		}
	}
}

func TestApproveModifyRequiresNewPriority(t *testing.T) {
	handler := newTestServer(jobs.NewMemoryStore()).Router()
	body, err := json.Marshal(map[string]any{
		"suggestionId": "sug_1",
		"action":       "modify",
		"platform":     "google",
		"actor":        "ops",
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	recorder := postApproval(t, handler, body, signBody(testSecret, body))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for modify without newPriority, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "newPriority required") {
		t.Fatalf("expected newPriority error, got %s", recorder.Body.String())
	}
}

type enqueueFailingStore struct {
	*jobs.MemoryStore
}

func (s *enqueueFailingStore) Enqueue(context.Context, jobs.EnqueueRequest) (string, error) {
	return "", errors.New("database offline")
}

func TestApproveReportsEnqueueFailure(t *testing.T) {
	handler := newTestServer(&enqueueFailingStore{jobs.NewMemoryStore()}).Router()
	body := validApprovalBody(t)

	recorder := postApproval(t, handler, body, signBody(testSecret, body))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for enqueue failure, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "enqueue error") {
		t.Fatalf("expected enqueue error body, got %s", recorder.Body.String())
	}
}

func TestApproveRejectsWhenNoSecretConfigured(t *testing.T) {
	handler := NewServer(jobs.NewMemoryStore(), nil, nil, ServerConfig{}, nil).Router()
	body := validApprovalBody(t)

	recorder := postApproval(t, handler, body, signBody("", body))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no secret is configured, got %d", recorder.Code)
	}
}

func TestHealthzReportsVersion(t *testing.T) {
	handler := NewServer(jobs.NewMemoryStore(), nil, nil, ServerConfig{AppVersion: "1.2.3"}, nil).Router()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var reply map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if reply["ok"] != true || reply["version"] != "1.2.3" {
		t.Fatalf("unexpected healthz reply: %+v", reply)
	}
}
