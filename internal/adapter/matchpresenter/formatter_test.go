package matchpresenter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/msgcat"
	"github.com/park285/cheese-match/internal/participant"
	"github.com/park285/cheese-match/pkg/matchproto"
)

const start = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("en", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewFormatter(cat)
}

func TestBoard(t *testing.T) {
	b := Board(start, false)
	lines := strings.Split(strings.TrimRight(b, "\n"), "\n")
	if len(lines) != 9 {
		t.Fatalf("lines = %d\n%s", len(lines), b)
	}
	if lines[0] != "8  r n b q k b n r" || lines[4] != "4  . . . . . . . ." {
		t.Fatalf("board:\n%s", b)
	}
	flipped := strings.Split(Board(start, true), "\n")
	if flipped[0] != "1  R N B K Q B N R" {
		t.Fatalf("flipped first rank = %q", flipped[0])
	}
	if Board("bad", false) != "" {
		t.Fatalf("invalid fen should render nothing")
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[int64]string{
		0:         "0:00.0",
		9_540:     "0:09.5",
		65_000:    "1:05",
		3_725_000: "1:02:05",
		-5:        "0:00.0",
	}
	for ms, want := range cases {
		if got := FormatClock(ms); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestViewJoined(t *testing.T) {
	f := newFormatter(t)
	v := participant.View{
		Status:   participant.StatusJoined,
		GameID:   "g1",
		PlayerID: "alice",
		Role:     domain.RoleWhite,
		Seats:    matchproto.Seats{White: "alice", Black: "bob"},
		FEN:      start,
		Turn:     domain.White,
		MyTurn:   true,
		WhiteMs:  180_000,
		BlackMs:  175_000,
		Running:  domain.White,
		History:  []matchproto.MoveRecord{{Ply: 1, SAN: "e4"}, {Ply: 2, SAN: "e5"}},
	}
	out := f.View(v)
	for _, want := range []string{"Game g1", "you are white", "White: alice", "White 3:00 *", "Black 2:55", "Moves: 1. e4 e5", "Your move."} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}

	v.MyTurn = false
	v.DrawPending, v.DrawPrompt, v.OfferedBy = true, true, "bob"
	out = f.View(v)
	if !strings.Contains(out, "bob offers a draw") {
		t.Fatalf("no draw prompt in\n%s", out)
	}
}

func TestViewUnconfirmedAndResult(t *testing.T) {
	f := newFormatter(t)
	v := participant.View{Status: participant.StatusJoined, GameID: "g1", Role: domain.RoleBlack, FEN: start,
		Seats: matchproto.Seats{White: "a", Black: "b"}, Unconfirmed: true, PendingMove: "e7e5", Unlimited: true}
	out := f.View(v)
	if !strings.Contains(out, "Sent e7e5") || !strings.Contains(out, "No time limit.") {
		t.Fatalf("out:\n%s", out)
	}
	v.Result = &matchproto.Result{Winner: "white", Reason: "timeout"}
	if out := f.View(v); !strings.Contains(out, "White wins by timeout") {
		t.Fatalf("out:\n%s", out)
	}
}

func TestViewNotJoined(t *testing.T) {
	f := newFormatter(t)
	out := f.View(participant.View{Status: participant.StatusFailed, LastError: &matchproto.ErrorBody{Code: "auth_error", Message: "credential expired"}})
	if !strings.Contains(out, "Could not connect.") || !strings.Contains(out, "Sign-in failed: credential expired") {
		t.Fatalf("out:\n%s", out)
	}
}

func TestEventNotices(t *testing.T) {
	f := newFormatter(t)
	cases := []struct {
		ev   *matchproto.Event
		want string
	}{
		{&matchproto.Event{Type: matchproto.EventMoveMade, Move: &matchproto.MoveRecord{Ply: 3, Color: "white", SAN: "Nf3"}}, "3. White played Nf3."},
		{&matchproto.Event{Type: matchproto.EventPlayerJoined, PlayerID: "carol", Role: "observer"}, "carol joined as an observer."},
		{&matchproto.Event{Type: matchproto.EventGameOver, Result: &matchproto.Result{Draw: true, Reason: "agreement"}}, "Game over: draw by agreement."},
		{&matchproto.Event{Type: matchproto.EventError, Error: &matchproto.ErrorBody{Code: "weird", Message: "boom"}}, "Error: boom"},
		{&matchproto.Event{Type: matchproto.EventGameState}, ""},
	}
	for _, tc := range cases {
		if got := f.Event(tc.ev); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.ev.Type, got, tc.want)
		}
	}
}

func TestPresenterSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf, newFormatter(t))
	v := participant.View{Status: participant.StatusConnecting}
	if err := p.Render(v); err != nil {
		t.Fatal(err)
	}
	if err := p.Render(v); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "Connecting..."); n != 1 {
		t.Fatalf("rendered %d times", n)
	}
	if err := p.Notice(&matchproto.Event{Type: matchproto.EventDrawDeclined, PlayerID: "bob"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "» bob declined the draw.") {
		t.Fatalf("out:\n%s", buf.String())
	}
	if err := p.Redraw(v); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(buf.String(), "Connecting..."); n != 2 {
		t.Fatalf("redraw printed %d times total", n)
	}
}
