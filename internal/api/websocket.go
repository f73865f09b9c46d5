package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"solana-pulse-backend/internal/hub"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsMaxMsgSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origin enforcement belongs to the edge proxy
		return true
	},
}

// wsRequest is one client→server frame of the subscription protocol
type wsRequest struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Base    string `json:"base,omitempty"`
	Quote   string `json:"quote,omitempty"`
	TF      string `json:"tf,omitempty"`
}

// handleWebSocket upgrades the connection and pumps hub frames until the
// client disconnects
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := hub.NewSubscriber()
	s.hub.Register(sub)

	go s.writePump(conn, sub)
	s.readPump(conn, sub)
}

// readPump consumes subscription frames. Returning unregisters the
// subscriber, which closes the send channel and ends the write pump.
func (s *Server) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		s.hub.Unregister(sub)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMsgSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read failed", "subscriber", sub.ID, "error", err)
			}
			return
		}
		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		s.dispatch(sub, req)
	}
}

// dispatch maps a protocol frame onto hub topic membership
func (s *Server) dispatch(sub *hub.Subscriber, req wsRequest) {
	switch req.Type {
	case "subscribe:token":
		if req.Address != "" {
			s.hub.Subscribe(sub, hub.TokenTopic(req.Address))
		}
	case "unsubscribe:token":
		if req.Address != "" {
			s.hub.Unsubscribe(sub, hub.TokenTopic(req.Address))
		}
	case "subscribe:pulse":
		s.hub.Subscribe(sub, hub.TopicPulse)
	case "unsubscribe:pulse":
		s.hub.Unsubscribe(sub, hub.TopicPulse)
	case "subscribe:dashboard":
		s.hub.Subscribe(sub, hub.TopicDashboard)
	case "unsubscribe:dashboard":
		s.hub.Unsubscribe(sub, hub.TopicDashboard)
	case "subscribe:ohlcv":
		if req.Base != "" && req.Quote != "" && req.TF != "" {
			s.hub.Subscribe(sub, hub.OHLCVTopic(req.Base, req.Quote, req.TF))
		}
	case "unsubscribe:ohlcv":
		if req.Base != "" && req.Quote != "" && req.TF != "" {
			s.hub.Unsubscribe(sub, hub.OHLCVTopic(req.Base, req.Quote, req.TF))
		}
	case "subscribe:trades":
		if req.Base != "" && req.Quote != "" {
			s.hub.Subscribe(sub, hub.TradesTopic(req.Base, req.Quote))
		}
	case "unsubscribe:trades":
		if req.Base != "" && req.Quote != "" {
			s.hub.Unsubscribe(sub, hub.TradesTopic(req.Base, req.Quote))
		}
	}
}

// writePump forwards hub frames to the socket and keeps the connection
// alive with pings
func (s *Server) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case payload, ok := <-sub.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
