package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// GetEvents handles GET /events. Upgrades to a websocket and streams UI events as JSON until
// the client goes away or the handler is closed. Client messages are read and discarded.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, r, http.StatusNotFound, "NOT_AVAILABLE", "event stream not configured")
		return
	}
	logger := loggerFrom(r, h.logger)
	hdr := http.Header{}
	if id := correlationID(r); id != "" {
		hdr.Set(correlationHeader, id)
	}
	conn, err := h.upgrader.Upgrade(w, r, hdr)
	if err != nil {
		// Upgrade has already replied
		logger.Debug("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, cancel := h.deps.Hub.Subscribe()
	defer cancel()
	logger.Info("event subscriber connected", zap.String("remote_addr", r.RemoteAddr))

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if h.deps.Network != nil {
		hello := events.Event{Kind: events.KindNetwork, Message: h.deps.Network.Current().String(), Timestamp: time.Now().UTC()}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(hello); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			logger.Info("event subscriber disconnected")
			return
		case <-h.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				logger.Debug("event write", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
