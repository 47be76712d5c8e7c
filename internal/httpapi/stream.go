package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// handleStream is the SSE gateway. With a pub/sub backend each published
// message is relayed verbatim as a discrete event; without one the client
// gets a ready event then heartbeats, so it can tell an idle stream from a
// dead connection. The request context tears down the subscription and the
// ticker: nothing outlives the connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	if s.source != nil && s.source.Configured() {
		messages, stop, err := s.source.Subscribe(ctx)
		if err != nil {
			s.logger.Warn("upstream subscribe failed", zap.Error(err))
			http.Error(w, "upstream subscribe failed", http.StatusBadGateway)
			return
		}
		defer stop()
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-ctx.Done():
				return
			case message, open := <-messages:
				if !open {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", message)
				flusher.Flush()
			}
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ready\ndata: %q\n\n", "no-backend")
	flusher.Flush()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: %d\n\n", time.Now().UnixMilli())
			flusher.Flush()
		}
	}
}

// handleStreamWS serves the same event flow over a websocket for clients
// that cannot hold an EventSource open.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if s.source != nil && s.source.Configured() {
		messages, stop, err := s.source.Subscribe(ctx)
		if err != nil {
			s.logger.Warn("upstream subscribe failed", zap.Error(err))
			_ = conn.Close(websocket.StatusInternalError, "upstream subscribe failed")
			return
		}
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case message, open := <-messages:
				if !open {
					_ = conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, []byte(message)); err != nil {
					return
				}
			}
		}
	}

	if err := writeWSEvent(ctx, conn, map[string]any{"event": "ready"}); err != nil {
		return
	}
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeWSEvent(ctx, conn, map[string]any{"event": "ping", "ts": time.Now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, raw)
}
