package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"

	"github.com/tomyan/headlessmocha/internal/log"
)

// eventBuffer is the capacity of each channel subscription and capture output.
const eventBuffer = 100

// Client is a Chrome DevTools Protocol client.
type Client struct {
	conn            *websocket.Conn
	wsURL           string
	logger          *log.Logger
	mu              sync.Mutex
	messageID       atomic.Int64
	pending         map[int64]chan callResult
	pendingMu       sync.Mutex
	eventHandlers   map[string][]chan easyjson.RawMessage // key: "sessionID:method"
	eventQueues     map[string][]*eventQueue
	eventHandlersMu sync.Mutex
	sessions        map[target.ID]target.SessionID
	sessionsMu      sync.Mutex
	closed          atomic.Bool
	closeOnce       sync.Once
	closeCh         chan struct{}
}

var _ cdp.Executor = (*Client)(nil)

type callResult struct {
	Result easyjson.RawMessage
	Error  *ProtocolError
}

// Connect resolves the browser's websocket URL from its /json/version
// endpoint at host:port and dials it.
func Connect(ctx context.Context, host string, port int, logger *log.Logger) (*Client, error) {
	jsonURL := fmt.Sprintf("http://%s:%d/json/version", host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jsonURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to Chrome: %w", err)
	}
	defer resp.Body.Close()

	var versionResp struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&versionResp); err != nil {
		return nil, fmt.Errorf("decoding version response: %w", err)
	}
	if versionResp.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("no WebSocket URL in response")
	}

	return Dial(ctx, versionResp.WebSocketDebuggerURL, logger)
}

// Dial connects to the browser websocket at wsURL.
func Dial(ctx context.Context, wsURL string, logger *log.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to WebSocket: %w", err)
	}

	c := &Client{
		conn:          conn,
		wsURL:         wsURL,
		logger:        logger,
		pending:       make(map[int64]chan callResult),
		eventHandlers: make(map[string][]chan easyjson.RawMessage),
		eventQueues:   make(map[string][]*eventQueue),
		sessions:      make(map[target.ID]target.SessionID),
		closeCh:       make(chan struct{}),
	}
	go c.readMessages()

	logger.Debugf("cdp", "connected to %s", wsURL)
	return c, nil
}

// WebSocketURL returns the WebSocket URL used for this connection.
func (c *Client) WebSocketURL() string {
	return c.wsURL
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection. Pending calls fail with ErrConnectionClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closeCh)
		err = c.conn.Close()

		c.pendingMu.Lock()
		for _, ch := range c.pending {
			close(ch)
		}
		c.pending = make(map[int64]chan callResult)
		c.pendingMu.Unlock()

		c.eventHandlersMu.Lock()
		for _, qs := range c.eventQueues {
			for _, q := range qs {
				q.close()
			}
		}
		c.eventQueues = make(map[string][]*eventQueue)
		c.eventHandlersMu.Unlock()

		c.logger.Debugf("cdp", "closed %s", c.wsURL)
	})
	return err
}

// Execute implements cdp.Executor for browser-level commands.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return c.execute(ctx, "", method, params, res)
}

func (c *Client) execute(ctx context.Context, sessionID target.SessionID, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	var raw easyjson.RawMessage
	if params != nil {
		data, err := easyjson.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
		raw = data
	}

	result, err := c.CallSession(ctx, sessionID, method, raw)
	if err != nil {
		return err
	}
	if res == nil || len(result) == 0 {
		return nil
	}
	if err := easyjson.Unmarshal(result, res); err != nil {
		return fmt.Errorf("unmarshaling %s result: %w", method, err)
	}
	return nil
}

// Call sends a browser-level command and waits for the response.
func (c *Client) Call(ctx context.Context, method string, params easyjson.RawMessage) (easyjson.RawMessage, error) {
	return c.CallSession(ctx, "", method, params)
}

// CallSession sends a command to a specific session and waits for the
// response. An empty sessionID addresses the browser.
func (c *Client) CallSession(ctx context.Context, sessionID target.SessionID, method string, params easyjson.RawMessage) (easyjson.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	id := c.messageID.Add(1)
	msg := &cdproto.Message{
		ID:        id,
		SessionID: sessionID,
		Method:    cdproto.MethodType(method),
		Params:    params,
	}
	data, err := easyjson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling message: %w", err)
	}

	respChan := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.logger.Debugf("cdp", "-> %d %s session=%s", id, method, sessionID)

	c.mu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	select {
	case result, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if result.Error != nil {
			return nil, result.Error
		}
		return result.Result, nil
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readMessages() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debugf("cdp", "read failed: %v", err)
			}
			return
		}

		var msg cdproto.Message
		if err := easyjson.Unmarshal(data, &msg); err != nil {
			c.logger.Warnf("cdp", "undecodable message: %v", err)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				res := callResult{Result: msg.Result}
				if msg.Error != nil {
					res.Error = &ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
				}
				ch <- res
			}
			c.pendingMu.Unlock()
			continue
		}

		if msg.Method != "" {
			c.dispatch(msg.SessionID, msg.Method, msg.Params)
		}
	}
}

func (c *Client) dispatch(sessionID target.SessionID, method cdproto.MethodType, params easyjson.RawMessage) {
	key := eventKey(sessionID, method)

	c.eventHandlersMu.Lock()
	defer c.eventHandlersMu.Unlock()

	for _, q := range c.eventQueues[key] {
		q.push(params)
	}
	for _, h := range c.eventHandlers[key] {
		select {
		case h <- params:
		default:
			c.logger.Warnf("cdp", "dropping %s for session %s: subscriber full", method, sessionID)
		}
	}
}

func eventKey(sessionID target.SessionID, method cdproto.MethodType) string {
	return string(sessionID) + ":" + string(method)
}

// subscribeEvent registers a handler for protocol events.
func (c *Client) subscribeEvent(sessionID target.SessionID, method cdproto.MethodType) chan easyjson.RawMessage {
	ch := make(chan easyjson.RawMessage, eventBuffer)
	key := eventKey(sessionID, method)

	c.eventHandlersMu.Lock()
	c.eventHandlers[key] = append(c.eventHandlers[key], ch)
	c.eventHandlersMu.Unlock()

	return ch
}

// subscribeQueue registers a lossless subscription for protocol events. The
// queue is closed by unsubscribeQueue or when the connection closes.
func (c *Client) subscribeQueue(sessionID target.SessionID, method cdproto.MethodType) *eventQueue {
	q := newEventQueue()
	key := eventKey(sessionID, method)

	c.eventHandlersMu.Lock()
	defer c.eventHandlersMu.Unlock()
	if c.closed.Load() {
		q.close()
		return q
	}
	c.eventQueues[key] = append(c.eventQueues[key], q)
	return q
}

func (c *Client) unsubscribeQueue(sessionID target.SessionID, method cdproto.MethodType, q *eventQueue) {
	key := eventKey(sessionID, method)

	c.eventHandlersMu.Lock()
	defer c.eventHandlersMu.Unlock()

	queues := c.eventQueues[key]
	for i, h := range queues {
		if h == q {
			c.eventQueues[key] = append(queues[:i], queues[i+1:]...)
			break
		}
	}
	q.close()
}

// unsubscribeEvent removes an event handler and closes its channel.
func (c *Client) unsubscribeEvent(sessionID target.SessionID, method cdproto.MethodType, ch chan easyjson.RawMessage) {
	key := eventKey(sessionID, method)

	c.eventHandlersMu.Lock()
	defer c.eventHandlersMu.Unlock()

	handlers := c.eventHandlers[key]
	for i, h := range handlers {
		if h == ch {
			c.eventHandlers[key] = append(handlers[:i], handlers[i+1:]...)
			close(ch)
			return
		}
	}
}
