package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/camayank/clientportal-realtime/internal/domain"
	apperrors "github.com/camayank/clientportal-realtime/internal/errors"
	"github.com/camayank/clientportal-realtime/internal/metrics"
)

const (
	writeDeadline = 5 * time.Second
	// pongDeadline is a transport-level backstop behind the liveness monitor:
	// the monitor prunes a silent peer within two probe intervals, the read
	// deadline catches connections the monitor no longer tracks.
	pongDeadline      = 75 * time.Second
	messageBufferSize = 16
)

type outFrame struct {
	messageType int
	data        []byte
}

// Conn is an open bidirectional channel bound to exactly one authenticated
// identity. It owns a single writer goroutine; all outbound frames (messages,
// pings, the close frame) are serialized through it.
type Conn struct {
	id       uuid.UUID
	identity domain.Identity
	ws       *websocket.Conn
	log      *slog.Logger

	stateMu sync.Mutex
	state   domain.ConnState

	alive atomic.Bool

	sendChannel chan outFrame
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewConn wraps an upgraded WebSocket connection. The identity must already
// be resolved: connection objects exist only after a successful handshake,
// so the initial state is Authenticated.
func NewConn(ws *websocket.Conn, identity domain.Identity) *Conn {
	c := &Conn{
		id:          uuid.New(),
		identity:    identity,
		ws:          ws,
		state:       domain.StateAuthenticated,
		sendChannel: make(chan outFrame, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	c.log = slog.Default().With(
		"connection_id", c.id.String(),
		"user_id", int64(identity.UserID),
		"role", string(identity.Role),
	)

	// The completed handshake itself proves liveness for the first interval.
	c.alive.Store(true)
	c.configurePongHandler()

	c.wg.Add(1)
	go c.run()
	return c
}

// ID returns the connection's correlation id.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Identity returns the immutable identity bound at handshake time.
func (c *Conn) Identity() domain.Identity {
	return c.identity
}

// State returns the current lifecycle state.
func (c *Conn) State() domain.ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsOpen reports whether the connection may be written to.
func (c *Conn) IsOpen() bool {
	return c.State() == domain.StateOpen
}

// markOpen transitions Authenticated -> Open. Called by the registry when the
// connection is inserted.
func (c *Conn) markOpen() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == domain.StateAuthenticated {
		c.state = domain.StateOpen
	}
}

// Alive reports whether a probe response arrived since the last ClearAlive.
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// ClearAlive resets the alive flag before a probe. Only a subsequent pong
// sets it again.
func (c *Conn) ClearAlive() {
	c.alive.Store(false)
}

// Send marshals and delivers a message to this connection.
func (c *Conn) Send(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.DeliveryFailure("failed to marshal message").WithContext("type", string(msg.Type))
	}
	return c.SendBytes(data)
}

// SendBytes delivers a pre-marshalled frame. The open-state check happens
// immediately before enqueueing so a torn-down socket is never written to.
// A full buffer drops the frame: delivery is best-effort and a slow consumer
// must not block the sender.
func (c *Conn) SendBytes(data []byte) error {
	if !c.IsOpen() {
		metrics.DeliveryDrops.WithLabelValues("not_open").Inc()
		return apperrors.DeliveryFailure("connection not open").WithContext("state", c.State().String())
	}

	select {
	case c.sendChannel <- outFrame{messageType: websocket.TextMessage, data: data}:
		return nil
	default:
		metrics.DeliveryDrops.WithLabelValues("buffer_full").Inc()
		c.log.Warn("Dropping message: send buffer full")
		return apperrors.DeliveryFailure("send buffer full")
	}
}

// Ping enqueues a liveness probe.
func (c *Conn) Ping() error {
	if !c.IsOpen() {
		return apperrors.DeliveryFailure("connection not open").WithContext("state", c.State().String())
	}

	select {
	case c.sendChannel <- outFrame{messageType: websocket.PingMessage}:
		return nil
	default:
		return apperrors.DeliveryFailure("send buffer full")
	}
}

// ReadLoop consumes inbound frames until the transport fails or closes,
// passing each frame to handler. It must run on the connection's reader
// goroutine; the pong handler fires inside it.
func (c *Conn) ReadLoop(handler func(data []byte)) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if handler != nil {
			handler(data)
		}
	}
}

// Close transitions the connection through Closing to Closed, stops the
// writer goroutine, sends a close frame with the given reason, and closes the
// underlying socket. Safe to call multiple times; Closed is terminal.
func (c *Conn) Close(reason string) {
	c.stopOnce.Do(func() {
		c.stateMu.Lock()
		c.state = domain.StateClosing
		c.stateMu.Unlock()

		// Stop the writer before touching the socket: gorilla connections
		// support only one concurrent writer.
		close(c.doneChannel)
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = c.ws.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.ws.Close()

		c.stateMu.Lock()
		c.state = domain.StateClosed
		c.stateMu.Unlock()

		c.log.Debug("Connection closed", "reason", reason)
	})
}

func (c *Conn) run() {
	defer c.wg.Done()

	for {
		select {
		case frame := <-c.sendChannel:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(frame.messageType, frame.data); err != nil {
				if frame.messageType == websocket.PingMessage {
					metrics.PingFailures.Inc()
				}
				// Transport is gone; the read pump will observe the error and
				// trigger Close plus unregistration.
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

func (c *Conn) configurePongHandler() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongDeadline))
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return c.ws.SetReadDeadline(time.Now().Add(pongDeadline))
	})
}
