package signal

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/pulse/internal/app/presence"
	"github.com/dkeye/pulse/internal/app/rpc"
	"github.com/dkeye/pulse/internal/core"
	"github.com/dkeye/pulse/internal/domain"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// serverEvent is the frame pushed by the server.
type serverEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ackFrame answers a message that carried an id.
type ackFrame struct {
	ID     uint64     `json:"id"`
	Error  *rpc.Error `json:"error"`
	Result any        `json:"result"`
}

// Conn is one live websocket. It serves presence as an emitter and the RPC
// router as the socket a message arrived on.
type Conn struct {
	member *domain.Member
	conn   WSConn
	send   chan core.Frame
	meta   RequestMeta

	mu     sync.RWMutex
	closed bool
}

var (
	_ core.SignalConnection = (*Conn)(nil)
	_ presence.Conn         = (*Conn)(nil)
	_ rpc.Socket            = (*Conn)(nil)
)

func newConn(member *domain.Member, ws WSConn, buffer int, meta RequestMeta) *Conn {
	return &Conn{
		member: member,
		conn:   ws,
		send:   make(chan core.Frame, buffer),
		meta:   meta,
	}
}

func (c *Conn) ID() domain.ConnID         { return c.member.ID }
func (c *Conn) Identity() domain.Identity { return c.member.Identity }
func (c *Conn) Meta() RequestMeta         { return c.meta }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Conn) Emit(event string, data any) error {
	b, err := json.Marshal(serverEvent{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (c *Conn) ack(id uint64, err *rpc.Error, result any) error {
	b, merr := json.Marshal(ackFrame{ID: id, Error: err, Result: result})
	if merr != nil {
		return merr
	}
	return c.TrySend(b)
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
