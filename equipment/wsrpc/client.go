// Package wsrpc talks to the equipment bridge over a WebSocket. Every
// service call is a JSON request carrying a unique id; the bridge answers
// each request exactly once with a message carrying the same id. Responses
// may arrive in any order.
package wsrpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/nightshift/am"
	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
	"github.com/teranos/nightshift/sym"
)

const (
	// Time allowed to write a message to the bridge
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the bridge
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	maxMessageSize = 1024 * 1024
)

// Error codes sent by the bridge.
const (
	CodeUnknownTarget  = -32001 // the addressed service is not running
	CodeBusy           = -32002
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
)

// Config configures the connection to the bridge.
type Config struct {
	Endpoint          string
	CallTimeout       time.Duration
	MaxCallsPerSecond float64
}

// ConfigFromAM reads the equipment section of the configuration.
func ConfigFromAM(cfg am.EquipmentConfig) Config {
	return Config{
		Endpoint:          cfg.Endpoint,
		CallTimeout:       time.Duration(cfg.CallTimeoutMS) * time.Millisecond,
		MaxCallsPerSecond: cfg.MaxCallsPerSecond,
	}
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error reported by the bridge.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Client is a connection to the bridge. It is safe for concurrent use.
type Client struct {
	cfg     Config
	conn    *websocket.Conn
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response
	err     error // set once the connection is gone

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the bridge at cfg.Endpoint.
func Dial(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.MaxCallsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxCallsPerSecond)
		burst = max(1, int(cfg.MaxCallsPerSecond))
	}
	log = logger.AddSymbol(log, sym.Wire)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.Endpoint, nil)
	if err != nil {
		return nil, errors.WithSecondaryError(
			errors.Wrapf(errors.ErrServiceUnavailable, "equipment bridge %s", cfg.Endpoint), err)
	}
	log.Infow("Connected to equipment bridge", logger.FieldAddress, cfg.Endpoint)

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	go c.readPump()
	go c.pingPump()
	return c, nil
}

// Close shuts the connection down. Calls in flight fail with
// errors.ErrServiceUnavailable.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
		close(c.done)
		c.fail(errors.Wrap(errors.ErrServiceUnavailable, "equipment bridge connection closed"))
	})
	return err
}

// Call sends method with params and decodes the answer into result, which
// may be nil. The call fails with errors.ErrTimeout when no answer arrives
// within the configured call timeout.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "%s", method)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan response, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return errors.Wrapf(err, "%s", method)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return errors.Wrapf(err, "encode %s", method)
	}

	start := time.Now()
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return errors.WithSecondaryError(
			errors.Wrapf(errors.ErrServiceUnavailable, "send %s", method), err)
	}

	var resp response
	select {
	case resp = <-ch:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrapf(errors.ErrTimeout, "%s after %s", method, c.cfg.CallTimeout)
		}
		return errors.Wrapf(ctx.Err(), "%s", method)
	}

	c.log.Debugw("Call",
		logger.FieldMethod, method,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if resp.Error != nil {
		return errors.Wrapf(codeError(resp.Error), "%s", method)
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

// codeError maps a bridge error onto the error taxonomy.
func codeError(e *RPCError) error {
	switch e.Code {
	case CodeUnknownTarget:
		return errors.WithSecondaryError(errors.Wrap(errors.ErrServiceUnavailable, e.Message), e)
	case CodeBusy:
		return errors.WithSecondaryError(errors.Wrap(errors.ErrBusy, e.Message), e)
	case CodeInvalidParams, CodeMethodNotFound:
		return errors.WithSecondaryError(errors.Wrap(errors.ErrInvalidRequest, e.Message), e)
	}
	return errors.Wrapf(e, "bridge error %d", e.Code)
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
			) {
				c.log.Warnw("Equipment bridge connection lost", logger.FieldError, err)
			}
			c.fail(errors.WithSecondaryError(
				errors.Wrap(errors.ErrServiceUnavailable, "equipment bridge connection lost"), err))
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warnw("Malformed bridge message", logger.FieldError, err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// the caller gave up waiting
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}

func (c *Client) pingPump() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// fail records the connection as gone and releases every waiting call.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	for id, ch := range c.pending {
		select {
		case ch <- response{ID: id, Error: &RPCError{Code: CodeUnknownTarget, Message: err.Error()}}:
		default:
		}
		delete(c.pending, id)
	}
}
