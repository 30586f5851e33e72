package matchpresenter

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/msgcat"
	"github.com/park285/cheese-match/internal/participant"
	"github.com/park285/cheese-match/pkg/matchproto"
)

const recentMoves = 12

// Formatter renders participant views and server events as terminal text.
type Formatter struct {
	cat *msgcat.Catalog
}

func NewFormatter(cat *msgcat.Catalog) *Formatter {
	return &Formatter{cat: cat}
}

func (f *Formatter) text(key string, data any) string {
	return f.cat.RenderOr(key, data, key)
}

// View renders the full screen for v.
func (f *Formatter) View(v participant.View) string {
	if v.Status != participant.StatusJoined {
		var sb strings.Builder
		sb.WriteString(f.text("status."+string(v.Status), map[string]any{"GameID": v.GameID}))
		if v.LastError != nil {
			sb.WriteString("\n")
			sb.WriteString(f.Error(v.LastError))
		}
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString(f.text("view.header", map[string]any{"GameID": v.GameID, "Role": f.role(v.Role), "Seq": v.Seq}))
	sb.WriteString("\n")
	sb.WriteString(f.text("view.seats", map[string]any{"White": f.seat(v.Seats.White), "Black": f.seat(v.Seats.Black)}))
	sb.WriteString("\n\n")
	sb.WriteString(Board(v.FEN, v.Role == domain.RoleBlack))
	sb.WriteString("\n")
	sb.WriteString(f.clocks(v))
	sb.WriteString("\n")
	if moves := f.moves(v.History); moves != "" {
		sb.WriteString(moves)
		sb.WriteString("\n")
	}
	sb.WriteString(f.prompt(v))
	if v.LastError != nil {
		sb.WriteString("\n")
		sb.WriteString(f.Error(v.LastError))
	}
	return sb.String()
}

func (f *Formatter) prompt(v participant.View) string {
	if v.Result != nil {
		return f.Result(v.Result)
	}
	lines := make([]string, 0, 2)
	switch {
	case v.Unconfirmed:
		lines = append(lines, f.text("turn.unconfirmed", map[string]any{"UCI": v.PendingMove}))
	case v.Seats.White == "" || v.Seats.Black == "":
		lines = append(lines, f.text("turn.waiting", nil))
	case v.MyTurn:
		lines = append(lines, f.text("turn.mine", nil))
	default:
		lines = append(lines, f.text("turn.theirs", map[string]any{"Color": f.color(v.Turn)}))
	}
	switch {
	case v.DrawPrompt:
		lines = append(lines, f.text("draw.prompt", map[string]any{"Player": v.OfferedBy}))
	case v.DrawPending && v.OfferedBy == v.PlayerID:
		lines = append(lines, f.text("draw.pending", nil))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) clocks(v participant.View) string {
	if v.Unlimited {
		return f.text("view.unlimited", nil)
	}
	return f.text("view.clocks", map[string]any{
		"White":        FormatClock(v.WhiteMs),
		"Black":        FormatClock(v.BlackMs),
		"WhiteRunning": v.Running == domain.White,
		"BlackRunning": v.Running == domain.Black,
	})
}

func (f *Formatter) moves(history []matchproto.MoveRecord) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > recentMoves {
		start = len(history) - recentMoves
		// keep move pairs aligned
		if start%2 == 1 {
			start++
		}
	}
	var sb strings.Builder
	if start > 0 {
		sb.WriteString("… ")
	}
	for i := start; i < len(history); i++ {
		mv := history[i]
		if mv.Ply%2 == 1 {
			sb.WriteString(fmt.Sprintf("%d. ", (mv.Ply+1)/2))
		}
		san := mv.SAN
		if san == "" {
			san = mv.UCI
		}
		sb.WriteString(san)
		if i < len(history)-1 {
			sb.WriteString(" ")
		}
	}
	return f.text("view.moves", map[string]any{"Moves": sb.String()})
}

// Event renders a one-line notice for ev, or "" when ev needs no notice.
func (f *Formatter) Event(ev *matchproto.Event) string {
	if ev == nil {
		return ""
	}
	switch ev.Type {
	case matchproto.EventPlayerJoined:
		return f.text("event.joined", map[string]any{"Player": ev.PlayerID, "Role": f.role(domain.Role(ev.Role))})
	case matchproto.EventMoveMade:
		if ev.Move == nil {
			return ""
		}
		return f.text("event.move", map[string]any{"Ply": ev.Move.Ply, "Color": f.color(domain.Color(ev.Move.Color)), "SAN": ev.Move.SAN})
	case matchproto.EventDrawOffered:
		return f.text("draw.offered", map[string]any{"Player": ev.OfferedBy})
	case matchproto.EventDrawDeclined:
		return f.text("draw.declined", map[string]any{"Player": ev.PlayerID})
	case matchproto.EventGameOver:
		return f.Result(ev.Result)
	case matchproto.EventError, matchproto.EventAuthError:
		return f.Error(ev.Error)
	default:
		return ""
	}
}

func (f *Formatter) Result(r *matchproto.Result) string {
	if r == nil {
		return ""
	}
	reason := f.text("reason."+r.Reason, nil)
	if r.Draw {
		return f.text("result.draw", map[string]any{"Reason": reason})
	}
	return f.text("result.win", map[string]any{"Winner": f.color(domain.Color(r.Winner)), "Reason": reason})
}

func (f *Formatter) Error(e *matchproto.ErrorBody) string {
	if e == nil {
		return ""
	}
	data := map[string]any{"Message": e.Message, "Code": e.Code}
	key := "error." + e.Code
	if !f.cat.Has(key) {
		key = "error.generic"
	}
	return f.text(key, data)
}

func (f *Formatter) Help() string { return f.text("help", nil) }

func (f *Formatter) color(c domain.Color) string {
	if !c.Valid() {
		return string(c)
	}
	return f.text("color."+string(c), nil)
}

func (f *Formatter) role(r domain.Role) string {
	if r == "" {
		r = domain.RoleObserver
	}
	return f.text("role."+string(r), nil)
}

func (f *Formatter) seat(id string) string {
	if id == "" {
		return f.text("view.empty_seat", nil)
	}
	return id
}

// FormatClock renders milliseconds as m:ss, h:mm:ss, or s.t under ten seconds.
func FormatClock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	if ms < 10_000 {
		return fmt.Sprintf("0:0%d.%d", ms/1000, (ms%1000)/100)
	}
	secs := ms / 1000
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Board draws the piece placement of fen as an 8x8 grid, from black's side when flip is set.
func Board(fen string, flip bool) string {
	placement := strings.Fields(fen)
	if len(placement) == 0 {
		return ""
	}
	ranks := strings.Split(placement[0], "/")
	if len(ranks) != 8 {
		return ""
	}
	var grid [8][8]rune
	for r, row := range ranks {
		file := 0
		for _, ch := range row {
			if ch >= '1' && ch <= '8' {
				for n := 0; n < int(ch-'0') && file < 8; n++ {
					grid[r][file] = '.'
					file++
				}
				continue
			}
			if file < 8 {
				grid[r][file] = ch
				file++
			}
		}
		for ; file < 8; file++ {
			grid[r][file] = '.'
		}
	}

	var sb strings.Builder
	for i := 0; i < 8; i++ {
		r := i
		if flip {
			r = 7 - i
		}
		sb.WriteString(fmt.Sprintf("%d ", 8-r))
		for j := 0; j < 8; j++ {
			c := j
			if flip {
				c = 7 - j
			}
			sb.WriteRune(' ')
			sb.WriteRune(grid[r][c])
		}
		sb.WriteString("\n")
	}
	files := "   a b c d e f g h"
	if flip {
		files = "   h g f e d c b a"
	}
	sb.WriteString(files)
	sb.WriteString("\n")
	return sb.String()
}
