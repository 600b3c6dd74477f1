package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/HatiCode/tsdash/pkg/httpx"
)

const (
	wsReadLimit = 4096
	wsIdle      = 5 * time.Minute
	wsWriteWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// refitSocket serves refits over a websocket. Each text message is a refit
// request; each gets exactly one reply, either a RefitView or an error
// body, in order. Messages draw from the same rate limiter as the HTTP
// fitting routes; a message over the limit is answered with an error and
// the connection stays open.
func (h *handler) refitSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("request_id", middleware.GetReqID(r.Context()))
	conn.SetReadLimit(wsReadLimit)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket closed", "error", err)
			}
			return
		}

		var reply any
		var req refitRequest
		if h.opts.Limiter != nil && !h.opts.Limiter.Allow() {
			logger.Debug("websocket message rate limited")
			reply = httpx.ErrorResponse{Error: httpx.TooManyRequests}
		} else if err := json.Unmarshal(msg, &req); err != nil {
			_, reply = failureBody(errBadJSON)
		} else if view, err := h.runRefit(r, req); err != nil {
			status, body := failureBody(err)
			if status == http.StatusInternalServerError {
				logger.Error("refit failed", "session", req.Session, "error", err)
			}
			reply = body
		} else {
			reply = view
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
	}
}
