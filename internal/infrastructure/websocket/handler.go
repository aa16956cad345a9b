package websocket

import (
	"net/http"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // observers connect from the UI origin
	},
}

// Hub is the join/leave surface of the aggregator.
type Hub interface {
	Join(sub domain.Subscriber) (domain.Snapshot, error)
	Leave(sub domain.Subscriber)
}

type WebSocketHandler struct {
	hub  Hub
	opts SubscriberOptions
	log  logger.Logger
}

func NewWebSocketHandler(hub Hub, opts SubscriberOptions, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		opts: opts,
		log:  log,
	}
}

// HandleConnection upgrades the request, sends the snapshot, and keeps the
// subscriber registered until the client disconnects or a send fails.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	sub := NewSubscriber(conn, h.opts, h.log)
	go sub.writePump()

	snapshot, err := h.hub.Join(sub)
	if err != nil {
		h.log.Error("Failed to join subscriber", "subscriber_id", sub.ID(), "error", err)
		sub.Close()
		return
	}
	h.log.Info("Subscriber connected", "subscriber_id", sub.ID(), "remote_addr", r.RemoteAddr, "auctions", len(snapshot))

	sub.readPump()

	h.hub.Leave(sub)
	sub.Close()
	h.log.Info("Subscriber disconnected", "subscriber_id", sub.ID())
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleConnection(w, r)
}
