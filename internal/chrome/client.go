// Package chrome is a small Chrome DevTools Protocol client over a single
// browser websocket. Tab binds it to one page target and implements
// driver.Driver.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tomyan/consolecap/internal/chrome/launcher"
)

// frame is every message on the wire: commands we send, their replies, and
// events Chrome pushes.
type frame struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ProtocolError  `json:"error,omitempty"`
}

type eventKey struct {
	session string
	method  string
}

// subscription receives the params of one event method in one session.
type subscription struct {
	key eventKey
	ch  chan json.RawMessage
}

// Client is a connection to a browser's debugging websocket.
type Client struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex
	lastID  atomic.Int64

	mu       sync.Mutex
	inflight map[int64]chan frame
	subs     map[eventKey][]*subscription
	attached map[string]string // target -> session

	done     chan struct{}
	shutOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a logger. Every protocol call is logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Connect looks up the browser websocket of the Chrome listening on
// host:port and dials it.
func Connect(ctx context.Context, host string, port int, opts ...Option) (*Client, error) {
	info, err := launcher.DetectRunning(ctx, host, port)
	if err != nil {
		return nil, err
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("Chrome at %s:%d reported no websocket URL", host, port)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, info.WebSocketDebuggerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", info.WebSocketDebuggerURL, err)
	}
	c := &Client{
		ws:       ws,
		logger:   zap.NewNop(),
		inflight: make(map[int64]chan frame),
		subs:     make(map[eventKey][]*subscription),
		attached: make(map[string]string),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Close detaches from every target and closes the websocket.
func (c *Client) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}

	c.mu.Lock()
	sessions := make([]string, 0, len(c.attached))
	for _, s := range c.attached {
		sessions = append(sessions, s)
	}
	c.attached = make(map[string]string)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range sessions {
		if err := c.call(ctx, "", "Target.detachFromTarget", map[string]string{"sessionId": s}, nil); err != nil {
			c.logger.Debug("detach failed", zap.String("session", s), zap.Error(err))
		}
	}
	return c.shutdown()
}

func (c *Client) shutdown() error {
	var err error
	c.shutOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Call sends a browser-level command and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "", method, params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// call sends method to session ("" for the browser) and decodes the result
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, session, method string, params, out interface{}) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	req := frame{ID: c.lastID.Add(1), SessionID: session, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: encoding params: %w", method, err)
		}
		req.Params = data
	}

	reply := make(chan frame, 1)
	c.mu.Lock()
	c.inflight[req.ID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, req.ID)
		c.mu.Unlock()
	}()

	start := time.Now()
	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var resp frame
	select {
	case resp = <-reply:
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}

	c.logger.Debug("cdp call",
		zap.String("method", method),
		zap.String("session", session),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("error", resp.Error != nil))
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = resp.Result
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("cdp connection lost", zap.Error(err))
			}
			return
		}
		c.route(f)
	}
}

func (c *Client) route(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.ID != 0 {
		if reply, ok := c.inflight[f.ID]; ok {
			reply <- f
		}
		return
	}
	for _, s := range c.subs[eventKey{f.SessionID, f.Method}] {
		select {
		case s.ch <- f.Params:
		default:
			// drop when the subscriber is behind
		}
	}
}

// listen subscribes to method events in session. Subscribe before sending
// the command that triggers them.
func (c *Client) listen(session, method string) *subscription {
	s := &subscription{key: eventKey{session, method}, ch: make(chan json.RawMessage, 16)}
	c.mu.Lock()
	c.subs[s.key] = append(c.subs[s.key], s)
	c.mu.Unlock()
	return s
}

func (c *Client) unlisten(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.subs[s.key]
	for i, other := range list {
		if other == s {
			c.subs[s.key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(c.subs[s.key]) == 0 {
		delete(c.subs, s.key)
	}
}
