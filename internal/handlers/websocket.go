package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/middleware"
	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024
)

// Rejecter counts inbound frames refused before they reach the matchmaker.
type Rejecter interface {
	Rejected(reason string)
}

// Signaling upgrades connections and feeds their events into the matchmaker.
type Signaling struct {
	matchmaker *matchmaking.Matchmaker
	upgrader   websocket.Upgrader
	sendBuffer int
	rejects    Rejecter
	log        *zap.Logger
}

func NewSignaling(mm *matchmaking.Matchmaker, allowedOrigins []string, sendBuffer int, rejects Rejecter, log *zap.Logger) *Signaling {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Signaling{
		matchmaker: mm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		sendBuffer: sendBuffer,
		rejects:    rejects,
		log:        log,
	}
}

// Client represents a WebSocket client connection. It is the matchmaking
// Channel for its user.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	log    *zap.Logger
	mu     sync.RWMutex
	closed bool
}

var _ matchmaking.Channel = (*Client)(nil)

// Emit queues an outbound event. A full buffer drops the event rather than
// stalling the matchmaker.
func (c *Client) Emit(event models.SignalType, payload any) {
	data, err := json.Marshal(models.Outbound{Type: event, Payload: payload})
	if err != nil {
		c.log.Error("failed to marshal message", zap.String("event", string(event)), zap.Error(err))
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.log.Warn("send buffer full, dropping message", zap.String("event", string(event)))
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// HandleSignaling handles WebSocket connections for matchmaking and signaling.
// The display name comes from the session ticket when there is one, otherwise
// from the displayName query parameter.
func (s *Signaling) HandleSignaling(c *gin.Context) {
	displayName := c.GetString(middleware.DisplayNameKey)
	if displayName == "" {
		displayName = c.Query("displayName")
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	id := uuid.NewString()
	client := &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, s.sendBuffer),
		log:  s.log.With(zap.String("connection_id", id)),
	}

	go client.writePump()
	s.matchmaker.Register(matchmaking.NewUser(id, displayName, client))
	go s.readPump(client)
}

func (s *Signaling) readPump(c *Client) {
	defer func() {
		s.matchmaker.Unregister(c.ID)
		c.close()
		c.Conn.Close()
		c.log.Info("connection closed")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}

		msg, err := models.DecodeInbound(data)
		if err != nil {
			s.reject(c, err)
			continue
		}
		s.dispatch(c.ID, msg)
	}
}

func (s *Signaling) dispatch(senderID string, msg models.Inbound) {
	switch m := msg.(type) {
	case *models.OfferPayload:
		s.matchmaker.RelayOffer(m.RoomID, senderID, m)
	case *models.AnswerPayload:
		s.matchmaker.RelayAnswer(m.RoomID, senderID, m)
	case *models.IceCandidatePayload:
		s.matchmaker.RelayIceCandidate(m.RoomID, senderID, m)
	case *models.EndCallPayload:
		s.matchmaker.EndCall(m.RoomID, senderID)
	}
}

// reject drops a single bad frame and tells the sender why. The connection
// stays open.
func (s *Signaling) reject(c *Client, err error) {
	reason := "malformed"
	if errors.Is(err, models.ErrUnknownType) {
		reason = "unknown_type"
	}
	c.log.Warn("rejected inbound message", zap.String("reason", reason), zap.Error(err))
	if s.rejects != nil {
		s.rejects.Rejected(reason)
	}
	c.Emit(models.SignalTypeError, models.ErrorPayload{Error: err.Error()})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
