package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-match/pkg/matchproto"
)

// echoServer answers every authenticate with auth-success and drops the first
// connection after its first reply when dropFirst is set.
func echoServer(t *testing.T, dropFirst bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		defer c.Close(websocket.StatusNormalClosure, "")
		for {
			var in matchproto.Intent
			if err := wsjson.Read(r.Context(), c, &in); err != nil {
				return
			}
			_ = wsjson.Write(r.Context(), c, matchproto.Event{Type: matchproto.EventAuthSuccess, PlayerID: in.Token, RequestID: in.RequestID})
			if dropFirst && n == 1 {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestSendAndReceive(t *testing.T) {
	srv, _ := echoServer(t, false)
	ws := NewWebSocket(wsURL(srv), 0, 0)
	events := make(chan matchproto.Event, 4)
	ws.OnEvent(func(ev *matchproto.Event) { events <- *ev })

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ws.Close(context.Background())
	if ws.State() != StateConnected {
		t.Fatalf("state=%s", ws.State())
	}
	if err := ws.Send(context.Background(), matchproto.Intent{Type: matchproto.IntentAuthenticate, Token: "alice", RequestID: "r1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case ev := <-events:
		if ev.PlayerID != "alice" || ev.RequestID != "r1" {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv, conns := echoServer(t, true)
	ws := NewWebSocket(wsURL(srv), 5, 10*time.Millisecond)
	states := make(chan State, 16)
	ws.OnStateChange(func(s State) { states <- s })

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ws.Close(context.Background())
	_ = ws.Send(context.Background(), matchproto.Intent{Type: matchproto.IntentAuthenticate, Token: "a"})

	sawReconnecting := false
	deadline := time.After(3 * time.Second)
	for conns.Load() < 2 || ws.State() != StateConnected {
		select {
		case s := <-states:
			if s == StateReconnecting {
				sawReconnecting = true
			}
		case <-deadline:
			t.Fatalf("did not reconnect, state=%s conns=%d", ws.State(), conns.Load())
		}
	}
	if !sawReconnecting {
		t.Fatalf("reconnecting state not reported")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1", 0, 0)
	if err := ws.Send(context.Background(), matchproto.Intent{Type: matchproto.IntentResign}); err != ErrNotConnected {
		t.Fatalf("err=%v", err)
	}
}
