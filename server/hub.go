package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MiChaelinzo/ai-stream-companion-sub000/relay"
	"github.com/MiChaelinzo/ai-stream-companion-sub000/telemetry"
)

const maxClients = 100

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn    *websocket.Conn
	replyCh chan *clientWriter
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	conn *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	data []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct {
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

// clientWriter serializes all writes to one socket through a single goroutine.
type clientWriter struct {
	conn     *websocket.Conn
	sendCh   chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			_ = cw.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

// send queues data without blocking; false means the client is too slow.
func (cw *clientWriter) send(data []byte) bool {
	select {
	case <-cw.done:
		return false
	default:
	}
	select {
	case cw.sendCh <- data:
		return true
	default:
		return false
	}
}

// sendEvent marshals and queues a single event for this client only.
func (cw *clientWriter) sendEvent(ev relay.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal client event", slog.Any("err", err))
		return
	}
	cw.send(data)
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.conn.Close()
	})
}

// --- Hub ---

// Hub tracks connected dashboard sockets and fans every relay event out to all
// of them. All state lives in the run goroutine; the public API posts commands.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[*websocket.Conn]*clientWriter
}

func NewHub() *Hub {
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[*websocket.Conn]*clientWriter),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c.data)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if len(h.clients) >= maxClients {
		slog.Warn("rejecting client: max clients reached", slog.Int("max", maxClients))
		c.conn.Close()
		c.replyCh <- nil
		return
	}
	cw := newClientWriter(c.conn)
	h.clients[c.conn] = cw
	telemetry.SetConnectedClients(len(h.clients))
	slog.Info("dashboard client connected", slog.Int("total", len(h.clients)))
	c.replyCh <- cw
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, exists := h.clients[conn]
	if !exists {
		return
	}
	cw.stop()
	delete(h.clients, conn)
	telemetry.SetConnectedClients(len(h.clients))
	slog.Info("dashboard client disconnected", slog.Int("remaining", len(h.clients)))
}

func (h *Hub) handleBroadcast(data []byte) {
	telemetry.CountBroadcast()
	var slow []*websocket.Conn
	for conn, cw := range h.clients {
		if !cw.send(data) {
			slow = append(slow, conn)
		}
	}
	for _, conn := range slow {
		slog.Warn("disconnecting slow dashboard client")
		h.handleUnregister(conn)
	}
}

func (h *Hub) handleStop() {
	for conn, cw := range h.clients {
		cw.stop()
		delete(h.clients, conn)
	}
	telemetry.SetConnectedClients(0)
}

// --- Public API ---

// Register adds a socket and returns its writer, or nil if the hub is full.
func (h *Hub) Register(conn *websocket.Conn) *clientWriter {
	replyCh := make(chan *clientWriter, 1)
	h.cmdCh <- cmdRegister{conn: conn, replyCh: replyCh}
	return <-replyCh
}

// Unregister removes a socket from the broadcast set.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{conn: conn}
}

// Publish implements relay.Sink: every relay event is serialized once and
// written to every open socket.
func (h *Hub) Publish(ev relay.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal broadcast event", slog.Any("err", err))
		return
	}
	h.cmdCh <- cmdBroadcast{data: data}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{replyCh: replyCh}
	return <-replyCh
}

// Stop shuts the hub down, closing all client connections.
func (h *Hub) Stop() {
	h.cmdCh <- cmdStop{}
}
