package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/jobs"
)

const approvalSchemaJSON = `{
	"type": "object",
	"required": ["suggestionId", "action", "platform", "actor"],
	"properties": {
		"suggestionId": {"type": "string", "minLength": 1},
		"action": {"enum": ["approve", "reject", "modify"]},
		"platform": {"type": "string", "minLength": 1},
		"actor": {"type": "string", "minLength": 1},
		"newPriority": {"type": "number"},
		"reason": {"type": ["string", "null"]}
	}
}`

var approvalSchema = mustCompileApprovalSchema()

func mustCompileApprovalSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(approvalSchemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("approval.json", doc); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("approval.json")
	if err != nil {
		panic(err)
	}
	return schema
}

type approvalPayload struct {
	SuggestionID string   `json:"suggestionId"`
	Action       string   `json:"action"`
	Platform     string   `json:"platform"`
	NewPriority  *float64 `json:"newPriority"`
	Reason       string   `json:"reason"`
	Actor        string   `json:"actor"`
}

// handleApprove is the approval ingress. The signature is checked against
// the raw body before any JSON parsing so unauthenticated requests never
// reach the job store, and the comparison is constant time.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return
	}
	signature := strings.TrimSpace(r.Header.Get("x-signature"))
	if signature == "" {
		writeError(w, http.StatusUnauthorized, "missing signature")
		return
	}
	if !verifySignature(s.cfg.WebhookSecret(), signature, body) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := approvalSchema.Validate(instance); err != nil {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}
	var payload approvalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if payload.Action == string(jobs.ActionModify) && payload.NewPriority == nil {
		writeError(w, http.StatusBadRequest, "newPriority required")
		return
	}

	var newPriority float64
	if payload.NewPriority != nil {
		newPriority = *payload.NewPriority
	}
	jobID, err := s.jobs.Enqueue(r.Context(), jobs.EnqueueRequest{
		SuggestionID: payload.SuggestionID,
		Action:       jobs.Action(payload.Action),
		Platform:     payload.Platform,
		NewPriority:  newPriority,
		Reason:       payload.Reason,
		Actor:        payload.Actor,
	})
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("suggestion_id", payload.SuggestionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "enqueue error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
}

func verifySignature(secret, signature string, body []byte) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
