package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/net/websocket"

	"keyprint/internal/capture"
	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
)

// streamFrame is one inbound WebSocket message: either a key press or the
// reset control frame.
type streamFrame struct {
	Reset     bool                `json:"reset,omitempty"`
	Key       string              `json:"key"`
	Code      string              `json:"code"`
	Timestamp float64             `json:"timestamp"`
	Modifiers keystroke.Modifiers `json:"modifiers"`
}

// streamError is the outbound error frame.
type streamError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// captureStream upgrades to a WebSocket and buffers key presses in a
// server-side capture session. Each time the session fills it is flushed,
// scored, and a PredictResponse frame is pushed back. Timing continuity
// across flushes is kept by the session, so a long typing stream yields a
// decision per batch.
func captureStream(deps AppDeps) http.Handler {
	return websocket.Handler(func(ws *websocket.Conn) {
		defer ws.Close()

		session := capture.NewSession(deps.BatchSize)
		ctx := ws.Request().Context()
		logger := slog.Default()

		for {
			var frame streamFrame
			if err := websocket.JSON.Receive(ws, &frame); err != nil {
				if err != io.EOF {
					logger.Debug("capture stream closed", "error", err)
				}
				return
			}

			if frame.Reset {
				session.Reset()
				continue
			}

			session.Record(frame.Key, frame.Code, frame.Timestamp, frame.Modifiers)
			if !session.Ready() {
				continue
			}

			resp, err := predict(ctx, deps, session.Flush())
			if err != nil {
				var out streamError
				out.Error.Message = err.Error()
				out.Error.Type = "api_error"
				if errors.Is(err, identify.ErrInsufficientSample) {
					out.Error.Type = "insufficient_sample"
				}
				if sendErr := websocket.JSON.Send(ws, out); sendErr != nil {
					return
				}
				continue
			}

			if err := websocket.JSON.Send(ws, resp); err != nil {
				return
			}
		}
	})
}
