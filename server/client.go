package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeout constants following Gorilla best practices
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Outbound queue size per client; slow consumers drop messages rather
	// than stall the broadcaster
	clientSendBuffer = 256
)

// Client represents one WebSocket subscriber to live run events.
type Client struct {
	conn      *websocket.Conn
	sendMsg   chan interface{}
	closeOnce sync.Once
}

// HandleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		sendMsg: make(chan interface{}, clientSendBuffer),
	}

	s.mu.Lock()
	s.clients[client] = true
	count := len(s.clients)
	s.mu.Unlock()
	s.logger.Debugw("WebSocket client connected", "clients", count)

	s.wg.Add(2)
	go s.clientWritePump(client)
	go s.clientReadPump(client)
}

// clientWritePump serializes outbound messages and keepalive pings.
func (s *Server) clientWritePump(client *Client) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-client.sendMsg:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientReadPump consumes (and discards) inbound frames to process control
// messages and detect disconnects.
func (s *Server) clientReadPump(client *Client) {
	defer s.wg.Done()
	defer s.removeClient(client)

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	delete(s.clients, client)
	count := len(s.clients)
	s.mu.Unlock()
	client.close()
	s.logger.Debugw("WebSocket client disconnected", "clients", count)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}
