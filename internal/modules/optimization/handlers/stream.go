package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/optimization/progress"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// Stream message types.
const (
	MessageProgress   = "progress"
	MessageResult     = "result"
	MessageValidation = "validation"
	MessageError      = "error"
)

const (
	requestReadTimeout  = 30 * time.Second
	messageWriteTimeout = 5 * time.Second
)

// StreamMessage is one frame sent to a stream client.
type StreamMessage struct {
	Type       string             `json:"type"`
	Progress   *progress.Update   `json:"progress,omitempty"`
	Data       *Response          `json:"data,omitempty"`
	Validation *validation.Result `json:"validation,omitempty"`
	Error      *httpapi.ErrorBody `json:"error,omitempty"`
	Cached     bool               `json:"cached,omitempty"`
}

// HandleStream handles GET /api/optimize/stream
//
// The client sends one optimization request as a text message and receives
// progress messages followed by a single result, validation or error
// message. Closing the socket cancels the run.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")
	conn.SetReadLimit(httpapi.MaxBodyBytes)

	readCtx, cancelRead := context.WithTimeout(r.Context(), requestReadTimeout)
	msgType, body, err := conn.Read(readCtx)
	cancelRead()
	if err != nil {
		h.log.Debug().Err(err).Int("close_status", int(websocket.CloseStatus(err))).Msg("Stream closed before request")
		return
	}
	if msgType != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "expected a JSON text message")
		return
	}

	// CloseRead discards further client frames and cancels ctx once the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	send := func(msg StreamMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to encode stream message")
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, messageWriteTimeout)
		defer cancel()
		if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
			h.log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to write stream message")
		}
	}

	out := h.run(ctx, body, func(u progress.Update) {
		send(StreamMessage{Type: MessageProgress, Progress: &u})
	})

	switch {
	case ctx.Err() != nil:
		h.log.Info().Msg("Optimization stream cancelled by client")
		return
	case out.validation != nil:
		send(StreamMessage{Type: MessageValidation, Validation: out.validation})
	case out.err != nil:
		code := errorCode(out.err)
		message := out.err.Error()
		if code == httpapi.CodeInternal {
			h.log.Error().Err(out.err).Msg("Streamed optimization failed")
			message = "internal error"
		}
		send(StreamMessage{
			Type:  MessageError,
			Data:  out.response,
			Error: &httpapi.ErrorBody{Code: code, Message: message},
		})
	default:
		send(StreamMessage{Type: MessageResult, Data: out.response, Cached: out.cached})
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
