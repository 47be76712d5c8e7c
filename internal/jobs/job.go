package jobs

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
)

func ParseAction(raw string) (Action, bool) {
	switch Action(strings.TrimSpace(raw)) {
	case ActionApprove:
		return ActionApprove, true
	case ActionReject:
		return ActionReject, true
	case ActionModify:
		return ActionModify, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

type Job struct {
	ID           string    `json:"id"`
	SuggestionID string    `json:"suggestion_id"`
	Action       Action    `json:"action"`
	Platform     string    `json:"platform"`
	NewPriority  float64   `json:"new_priority"`
	Reason       string    `json:"reason,omitempty"`
	Actor        string    `json:"actor"`
	Status       Status    `json:"status"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type EnqueueRequest struct {
	SuggestionID string  `json:"suggestionId"`
	Action       Action  `json:"action"`
	Platform     string  `json:"platform"`
	NewPriority  float64 `json:"newPriority"`
	Reason       string  `json:"reason,omitempty"`
	Actor        string  `json:"actor"`
}

func (r EnqueueRequest) validate() error {
	if strings.TrimSpace(r.SuggestionID) == "" {
		return ErrInvalidInput
	}
	if _, ok := ParseAction(string(r.Action)); !ok {
		return ErrInvalidInput
	}
	if strings.TrimSpace(r.Platform) == "" || strings.TrimSpace(r.Actor) == "" {
		return ErrInvalidInput
	}
	return nil
}

// TransitionPatch carries the field updates applied together with a status
// transition. Nil fields are left untouched.
type TransitionPatch struct {
	Attempts  *int
	LastError *string
}

// Store is the durable job table. Transition must be conditional on the
// previous status and report whether the update took effect; a false return
// with a nil error means another worker won the race.
type Store interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (string, error)
	ListQueued(ctx context.Context, limit int) ([]Job, error)
	Transition(ctx context.Context, id string, from, to Status, patch TransitionPatch) (bool, error)
	Get(ctx context.Context, id string) (Job, error)
	Close() error
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
