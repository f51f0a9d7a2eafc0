package plc

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KevinKickass/FountainCore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockPLC accepts sessions and delivers every received line.
type mockPLC struct {
	ln    net.Listener
	lines chan string
}

func newMockPLC(t *testing.T) *mockPLC {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	m := &mockPLC{ln: ln, lines: make(chan string, 16)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					m.lines <- line
				}
			}()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	return m
}

func (m *mockPLC) addr() string {
	return m.ln.Addr().String()
}

func (m *mockPLC) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-m.lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PLC line")
		return ""
	}
}

func TestSendQueueBatchesOneLine(t *testing.T) {
	peer := newMockPLC(t)
	c := NewClient(Options{Enabled: true, Address: peer.addr(), ConnectTimeout: time.Second}, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Connect())
	assert.Equal(t, StateConnected, c.State())

	assert.True(t, c.Queue("001-008"))
	assert.True(t, c.Queue("002-010"))
	require.NoError(t, c.SendQueue())

	assert.Equal(t, "001-008 002-010\r\n", peer.next(t))
	assert.Equal(t, 0, c.Queued())
	assert.Equal(t, uint64(1), c.Status().BatchesSent)
}

func TestSendQueueEmptyIsNoop(t *testing.T) {
	var dials atomic.Int32
	c := newClient(Options{Enabled: true, Address: "plc:2000"}, func(context.Context, string) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("unreachable")
	}, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.SendQueue())
	assert.Equal(t, int32(0), dials.Load())
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	c := newClient(Options{Enabled: true, Address: "plc:2000", ConnectTimeout: 50 * time.Millisecond},
		func(ctx context.Context, _ string) (net.Conn, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, zaptest.NewLogger(t))
	defer c.Close()

	err := c.Connect()
	assert.ErrorIs(t, err, types.ErrComm)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Healthy())
}

func TestFailedSendDropsBatchAndReconnects(t *testing.T) {
	var dials atomic.Int32
	c := newClient(Options{Enabled: true, Address: "plc:2000", ConnectTimeout: time.Second},
		func(context.Context, string) (net.Conn, error) {
			n := dials.Add(1)
			client, server := net.Pipe()
			if n == 1 {
				// first session dies immediately
				server.Close()
			} else {
				go func() {
					r := bufio.NewReader(server)
					for {
						if _, err := r.ReadString('\n'); err != nil {
							return
						}
					}
				}()
			}
			return client, nil
		}, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Connect())

	c.Queue("001-008")
	c.Queue("002-010")
	err := c.SendQueue()
	assert.ErrorIs(t, err, types.ErrComm)
	assert.Equal(t, 0, c.Queued(), "failed batch must not be retried")

	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())

	st := c.Status()
	assert.Equal(t, uint64(1), st.BatchesDropped)
	assert.Empty(t, st.LastError)
}

func TestReconnectIsSingleFlight(t *testing.T) {
	var dials atomic.Int32
	release := make(chan struct{})
	c := newClient(Options{Enabled: true, Address: "plc:2000", ConnectTimeout: time.Second},
		func(ctx context.Context, _ string) (net.Conn, error) {
			dials.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, errors.New("refused")
		}, zaptest.NewLogger(t))
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Queue("003-001")
		assert.ErrorIs(t, c.SendQueue(), types.ErrComm)
	}
	assert.Equal(t, StateReconnecting, c.State())

	close(release)
	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), dials.Load())
	assert.Equal(t, uint64(3), c.Status().BatchesDropped)
}

func TestDisabledClient(t *testing.T) {
	var dials atomic.Int32
	c := newClient(Options{Enabled: false, Address: "plc:2000"}, func(context.Context, string) (net.Conn, error) {
		dials.Add(1)
		return nil, errors.New("must not dial")
	}, zaptest.NewLogger(t))
	defer c.Close()

	require.NoError(t, c.Connect())
	assert.True(t, c.Queue("001-001"))
	require.NoError(t, c.SendQueue())

	assert.Equal(t, StateDisabled, c.State())
	assert.True(t, c.Healthy())
	assert.True(t, c.Status().Healthy)
	assert.Equal(t, int32(0), dials.Load())
}

func TestQueueDropsOnContention(t *testing.T) {
	c := NewClient(Options{Enabled: true, Address: "plc:2000"}, zaptest.NewLogger(t))
	defer c.Close()

	c.mu.Lock()
	ok := c.Queue("001-001")
	c.mu.Unlock()

	assert.False(t, ok)
	assert.Equal(t, 0, c.Queued())
	assert.Equal(t, uint64(1), c.Status().CommandsDropped)
}

func TestSenderDrainsQueue(t *testing.T) {
	peer := newMockPLC(t)
	c := NewClient(Options{Enabled: true, Address: peer.addr(), ConnectTimeout: time.Second}, zaptest.NewLogger(t))
	defer c.Close()
	require.NoError(t, c.Connect())

	s := NewSender(c, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	// The sender briefly holds the lock on every tick.
	queue := func(cmd string) {
		require.Eventually(t, func() bool { return c.Queue(cmd) }, time.Second, time.Millisecond)
	}

	queue("010-001")
	assert.Equal(t, "010-001\r\n", peer.next(t))

	queue("010-002")
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Equal(t, "010-002\r\n", peer.next(t), "stop flushes the pending batch")
}

func TestNoReconnectAfterClose(t *testing.T) {
	var dials atomic.Int32
	c := newClient(Options{Enabled: true, Address: "plc:2000", ConnectTimeout: time.Second},
		func(context.Context, string) (net.Conn, error) {
			dials.Add(1)
			return nil, errors.New("refused")
		}, zaptest.NewLogger(t))

	require.NoError(t, c.Close())

	assert.True(t, c.Queue("004-001"))
	assert.ErrorIs(t, c.SendQueue(), types.ErrComm)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, int32(0), dials.Load())
	require.NoError(t, c.Close())
}

func TestSenderRestart(t *testing.T) {
	peer := newMockPLC(t)
	c := NewClient(Options{Enabled: true, Address: peer.addr(), ConnectTimeout: time.Second}, zaptest.NewLogger(t))
	defer c.Close()
	require.NoError(t, c.Connect())

	s := NewSender(c, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return c.Queue("011-001") }, time.Second, time.Millisecond)
	assert.Equal(t, "011-001\r\n", peer.next(t), "restarted sender keeps ticking")
	s.Stop()
}
