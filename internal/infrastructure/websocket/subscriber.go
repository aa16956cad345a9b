package websocket

import (
	"sync"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxClientMessageSize = 4096

type SubscriberOptions struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Subscriber is one observer connection. Send never blocks: payloads go into a
// fixed-size buffer drained by writePump, and a full buffer is reported as
// domain.ErrSubscriberBackedUp.
type Subscriber struct {
	id   string
	conn *websocket.Conn
	opts SubscriberOptions
	log  logger.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(conn *websocket.Conn, opts SubscriberOptions, log logger.Logger) *Subscriber {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}

	id := uuid.NewString()
	return &Subscriber{
		id:   id,
		conn: conn,
		opts: opts,
		log:  log.With("subscriber_id", id),
		send: make(chan []byte, opts.BufferSize),
		done: make(chan struct{}),
	}
}

func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) Send(payload []byte) error {
	select {
	case <-s.done:
		return domain.ErrSubscriberClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return domain.ErrSubscriberBackedUp
	}
}

// Close is idempotent and safe to call from any goroutine.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

// Done is closed once the subscriber has been closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// writePump is the only goroutine writing data frames to the connection.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn("Failed to write to subscriber", "error", err)
				s.Close()
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				s.log.Warn("Failed to ping subscriber", "error", err)
				s.Close()
				return
			}
		}
	}
}

// readPump discards client messages and returns when the connection goes away.
// The read deadline is extended by every pong.
func (s *Subscriber) readPump() {
	pongWait := 2 * s.opts.PingInterval

	s.conn.SetReadLimit(maxClientMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Subscriber connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}
