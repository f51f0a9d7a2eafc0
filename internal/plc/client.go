package plc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/FountainCore/internal/types"
	"go.uber.org/zap"
)

// Dialer opens the TCP session. It must honour ctx.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

type Options struct {
	Enabled        bool
	Address        string
	ConnectTimeout time.Duration
}

// Client batches textual water commands and writes them to the PLC as one
// CRLF terminated line per batch.
type Client struct {
	address string
	timeout time.Duration
	dial    Dialer
	logger  *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	writer    *bufio.Writer
	state     State
	queue     []string
	lastErr   error
	changedAt time.Time

	sent        uint64
	dropped     uint64
	cmdsDropped atomic.Uint64

	reconnecting atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	return newClient(opts, nil, logger)
}

func newClient(opts Options, dial Dialer, logger *zap.Logger) *Client {
	if dial == nil {
		dial = func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	state := StateDisconnected
	if !opts.Enabled {
		state = StateDisabled
	}

	return &Client{
		address:   opts.Address,
		timeout:   opts.ConnectTimeout,
		dial:      dial,
		logger:    logger,
		state:     state,
		changedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect opens the session, bounded by the connect timeout. A failure
// leaves the client Disconnected.
func (c *Client) Connect() error {
	c.mu.Lock()
	switch c.state {
	case StateDisabled, StateConnected:
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dialTimeout()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		c.setStateLocked(StateDisconnected)
		return err
	}

	c.installLocked(conn)
	return nil
}

func (c *Client) dialTimeout() (net.Conn, error) {
	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dial(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", types.ErrComm, c.address, err)
	}
	return conn, nil
}

func (c *Client) installLocked(conn net.Conn) {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.lastErr = nil
	c.setStateLocked(StateConnected)

	c.logger.Info("PLC connected", zap.String("address", c.address))
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("PLC state change",
		zap.String("from", string(c.state)),
		zap.String("to", string(s)))
	c.state = s
	c.changedAt = time.Now()
}

// Queue appends a command without blocking. When the sender holds the
// lock the command is dropped and false is returned.
func (c *Client) Queue(text string) bool {
	if !c.mu.TryLock() {
		c.cmdsDropped.Add(1)
		c.logger.Warn("PLC queue busy, water command dropped", zap.String("command", text))
		return false
	}
	defer c.mu.Unlock()

	if c.state == StateDisabled {
		return true
	}

	c.queue = append(c.queue, text)
	return true
}

// SendQueue writes every queued command as one line. The queue is
// emptied before the write, so a failed batch is lost and never repeated.
func (c *Client) SendQueue() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil
	}

	line := strings.Join(c.queue, " ") + "\r\n"
	batch := len(c.queue)
	c.queue = nil

	if c.state != StateConnected {
		c.dropped++
		c.logger.Warn("PLC not connected, batch dropped",
			zap.String("state", string(c.state)),
			zap.Int("commands", batch))
		c.scheduleReconnectLocked()
		return fmt.Errorf("%w: plc not connected", types.ErrComm)
	}

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	_, err := c.writer.WriteString(line)
	if err == nil {
		err = c.writer.Flush()
	}
	if err != nil {
		c.dropped++
		c.lastErr = err
		c.logger.Error("PLC write failed, dropping connection",
			zap.String("address", c.address),
			zap.Int("commands", batch),
			zap.Error(err))
		c.closeLocked()
		c.setStateLocked(StateDisconnected)
		c.scheduleReconnectLocked()
		return fmt.Errorf("%w: plc write: %v", types.ErrComm, err)
	}

	c.sent++
	return nil
}

// scheduleReconnectLocked starts one background reconnect attempt unless
// one is already running.
func (c *Client) scheduleReconnectLocked() {
	if c.state == StateDisabled || c.ctx.Err() != nil {
		return
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	c.setStateLocked(StateReconnecting)
	c.wg.Add(1)
	go c.reconnect()
}

func (c *Client) reconnect() {
	defer c.wg.Done()
	defer c.reconnecting.Store(false)

	conn, err := c.dialTimeout()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || c.ctx.Err() != nil {
		if conn != nil {
			conn.Close()
		}
		if err != nil {
			c.lastErr = err
			c.logger.Warn("PLC reconnect failed", zap.Error(err))
		}
		c.setStateLocked(StateDisconnected)
		return
	}

	c.installLocked(conn)
}

func (c *Client) closeLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.writer = nil
}

// Close stops any reconnect attempt and closes the session.
func (c *Client) Close() error {
	// Cancelling under mu orders Close after any SendQueue in flight, so no
	// reconnect can be added to wg once Wait starts.
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	if c.state != StateDisabled {
		c.setStateLocked(StateDisconnected)
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Healthy is true when connected, and always when disabled.
func (c *Client) Healthy() bool {
	s := c.State()
	return s == StateDisabled || s == StateConnected
}

// Queued returns the number of commands waiting for the next batch.
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:           c.state,
		Address:         c.address,
		Healthy:         c.state == StateDisabled || c.state == StateConnected,
		Queued:          len(c.queue),
		BatchesSent:     c.sent,
		BatchesDropped:  c.dropped,
		CommandsDropped: c.cmdsDropped.Load(),
		LastStateChange: c.changedAt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
