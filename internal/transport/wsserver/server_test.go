package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-match/internal/coordinator"
	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/pkg/matchproto"
)

type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrAuth
	}
	return token, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	coord := coordinator.New(coordinator.Config{DefaultTimeControl: domain.TimeControl{InitialMs: 300_000}}, coordinator.Deps{Auth: tokenAuth{}})
	t.Cleanup(coord.Close)
	srv := httptest.NewServer(New(Config{}, coord, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func write(t *testing.T, c *websocket.Conn, in matchproto.Intent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, in); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn, want matchproto.EventType) matchproto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev matchproto.Event
	if err := wsjson.Read(ctx, c, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != want {
		t.Fatalf("got %s (%+v), want %s", ev.Type, ev.Error, want)
	}
	return ev
}

func TestWebSocketGame(t *testing.T) {
	srv := newTestServer(t)
	w, b := dial(t, srv), dial(t, srv)

	write(t, w, matchproto.Intent{Type: matchproto.IntentAuthenticate, Token: "alice"})
	read(t, w, matchproto.EventAuthSuccess)
	write(t, w, matchproto.Intent{Type: matchproto.IntentJoinGame, GameID: "g1"})
	read(t, w, matchproto.EventGameState)

	write(t, b, matchproto.Intent{Type: matchproto.IntentAuthenticate, Token: "bob"})
	read(t, b, matchproto.EventAuthSuccess)
	write(t, b, matchproto.Intent{Type: matchproto.IntentJoinGame, GameID: "g1"})
	if st := read(t, b, matchproto.EventGameState); st.Role != "black" {
		t.Fatalf("role=%s", st.Role)
	}
	read(t, w, matchproto.EventPlayerJoined)

	write(t, w, matchproto.Intent{Type: matchproto.IntentMakeMove, GameID: "g1", Move: "Nf3"})
	for _, c := range []*websocket.Conn{w, b} {
		if ev := read(t, c, matchproto.EventMoveMade); ev.Move.UCI != "g1f3" {
			t.Fatalf("move=%+v", ev.Move)
		}
	}

	resp, err := http.Get(srv.URL + "/games/g1")
	if err != nil {
		t.Fatalf("GET snapshot: %v", err)
	}
	defer resp.Body.Close()
	var st matchproto.GameState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || st.Seats.White != "alice" || len(st.History) != 1 {
		t.Fatalf("snapshot status=%d state=%+v", resp.StatusCode, st)
	}
}

func TestMalformedFrame(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := read(t, c, matchproto.EventError)
	if ev.Error.Code != string(domain.KindBadRequest) {
		t.Fatalf("code=%s", ev.Error.Code)
	}
	write(t, c, matchproto.Intent{Type: matchproto.IntentAuthenticate, Token: "carol"})
	read(t, c, matchproto.EventAuthSuccess)
}

func TestHTTPRoutes(t *testing.T) {
	srv := newTestServer(t)
	for path, want := range map[string]int{
		"/healthz":             http.StatusOK,
		"/games/missing":       http.StatusNotFound,
		"/players/alice/games": http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("GET %s status=%d want %d", path, resp.StatusCode, want)
		}
	}
}
