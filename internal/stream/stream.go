// Package stream carries job outcome updates from the worker to connected
// dashboard clients over a named pub/sub channel. Broadcasting is
// best-effort: a publish failure is reported as a boolean, never an error
// that could fail the caller's primary operation.
package stream

import "context"

const DefaultChannel = "mystery:updates"

// Publisher sends one JSON payload to every current subscriber. There is no
// persistence or replay for late subscribers.
type Publisher interface {
	Publish(ctx context.Context, payload any) bool
}

// Source is the gateway's side of the channel. Configured reports whether a
// pub/sub backend exists at all; when it does not, the gateway falls back to
// a heartbeat-only stream.
type Source interface {
	Configured() bool
	Subscribe(ctx context.Context) (<-chan string, func(), error)
}
