package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/FountainCore/internal/dmx"
	"github.com/KevinKickass/FountainCore/internal/plc"
	"github.com/KevinKickass/FountainCore/internal/show"
	"github.com/KevinKickass/FountainCore/internal/types"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubSnapshots struct{ snap *show.Snapshot }

func (s *stubSnapshots) Snapshot() *show.Snapshot { return s.snap }

type stubPLC struct{ state plc.State }

func (s *stubPLC) Status() plc.Status { return plc.Status{State: s.state} }

func drain(h *Hub) []Message {
	var out []Message
	for {
		select {
		case m := <-h.broadcast:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestFeedBroadcastsOnlyChanges(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	snaps := &stubSnapshots{snap: &show.Snapshot{
		ElapsedMs: 100,
		Colors:    map[int]types.RGBW{1: {R: 255}},
		Sinks:     []dmx.SinkStatus{{Name: "serial", Connected: true}},
	}}
	peer := &stubPLC{state: plc.StateDisconnected}
	feed := NewFeed(hub, snaps, peer, 0, zaptest.NewLogger(t))

	feed.poll()
	msgs := drain(hub)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTypeFixtureState, msgs[0].Type)
	assert.Equal(t, MessageTypeSinkStatus, msgs[1].Type)
	status := msgs[1].Data.(SinkStatusData)
	assert.Equal(t, "serial", status.Sinks[0].Name)

	// Only the elapsed time moved.
	next := *snaps.snap
	next.ElapsedMs = 200
	snaps.snap = &next
	feed.poll()
	assert.Empty(t, drain(hub))

	changedSnap := next
	changedSnap.Frame[0] = 255
	snaps.snap = &changedSnap
	peer.state = plc.StateConnected
	feed.poll()
	msgs = drain(hub)
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageTypeFixtureState, msgs[0].Type)
	assert.Equal(t, plc.StateConnected, msgs[1].Data.(SinkStatusData).PLC.State)
}

func TestFeedWithoutPLC(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	feed := NewFeed(hub, &stubSnapshots{}, nil, time.Second, zaptest.NewLogger(t))

	feed.poll()
	assert.Empty(t, drain(hub))
}

func TestHubDeliversBroadcasts(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, time.Millisecond)

	hub.Broadcast(NewSystemStatusMessage(map[string]string{"state": "RUNNING"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type MessageType       `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, MessageTypeSystemStatus, got.Type)
	assert.Equal(t, "RUNNING", got.Data["state"])

	cancel()
	<-hubDone
	assert.Equal(t, 0, hub.GetClientCount())

	// The hub closes the session on shutdown.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
