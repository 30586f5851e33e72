// Package rules adapts the chess rules library to the match core. It is treated as an
// oracle: legality, resulting position and automatic terminal states come from here.
package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"

	"github.com/park285/cheese-match/internal/domain"
)

// Line is a game as the UCI moves played from the standard starting position.
type Line struct {
	Moves []string
}

// MoveRequest names a move either by squares or by free-form notation (UCI, then SAN).
type MoveRequest struct {
	From      string
	To        string
	Promotion string
	Notation  string
}

// UCI renders the square form, e.g. "e7e8q".
func (r MoveRequest) UCI() string {
	return strings.ToLower(strings.TrimSpace(r.From) + strings.TrimSpace(r.To) + strings.TrimSpace(r.Promotion))
}

func (r MoveRequest) Empty() bool {
	return strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.To) == "" && strings.TrimSpace(r.Notation) == ""
}

// Applied is the engine's verdict on a legal move.
type Applied struct {
	UCI     string
	SAN     string
	FEN     string
	Turn    domain.Color
	Outcome *domain.Result
}

type Engine interface {
	StartFEN() string
	Apply(line Line, req MoveRequest) (Applied, error)
	Replay(line Line) (string, error)
	Opening(line Line) (code, title string)
}

type standard struct {
	startFEN string
	book     *opening.BookECO
}

// NewStandard returns the standard-chess engine.
func NewStandard() Engine {
	return &standard{startFEN: nchess.NewGame().FEN(), book: opening.NewBookECO()}
}

func (e *standard) StartFEN() string { return e.startFEN }

func (e *standard) Apply(line Line, req MoveRequest) (Applied, error) {
	game, err := reconstruct(line.Moves)
	if err != nil {
		return Applied{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Applied{}, domain.Errf(domain.KindGameOver, "position is already terminal")
	}
	pos := game.Position()

	candidates := make([]string, 0, 2)
	if uci := req.UCI(); len(uci) >= 4 {
		candidates = append(candidates, uci)
	}
	if n := strings.TrimSpace(req.Notation); n != "" {
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return Applied{}, domain.Errf(domain.KindIllegalMove, "empty move")
	}

	var applied bool
	for _, cand := range candidates {
		if pushErr := game.PushNotationMove(strings.ToLower(cand), nchess.UCINotation{}, nil); pushErr == nil {
			applied = true
			break
		}
		if pushErr := game.PushNotationMove(cand, nchess.AlgebraicNotation{}, nil); pushErr == nil {
			applied = true
			break
		}
	}
	if !applied {
		return Applied{}, domain.Errf(domain.KindIllegalMove, fmt.Sprintf("illegal move %q", candidates[0]))
	}

	last := lastMove(game)
	if last == nil {
		return Applied{}, domain.Errf(domain.KindIllegalMove, "move was not recorded")
	}
	return Applied{
		UCI:     strings.ToLower(nchess.UCINotation{}.Encode(pos, last)),
		SAN:     nchess.AlgebraicNotation{}.Encode(pos, last),
		FEN:     game.FEN(),
		Turn:    colorFrom(game.Position().Turn()),
		Outcome: outcomeOf(game),
	}, nil
}

func (e *standard) Replay(line Line) (string, error) {
	game, err := reconstruct(line.Moves)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// Opening returns the ECO code and title of the line, if the book knows it.
func (e *standard) Opening(line Line) (string, string) {
	if e.book == nil {
		return "", ""
	}
	game, err := reconstruct(line.Moves)
	if err != nil {
		return "", ""
	}
	if eco := e.book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

func reconstruct(moves []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) domain.Color {
	if c == nchess.White {
		return domain.White
	}
	return domain.Black
}

func outcomeOf(game *nchess.Game) *domain.Result {
	switch game.Outcome() {
	case nchess.WhiteWon:
		return domain.WinFor(domain.White, domain.ReasonCheckmate)
	case nchess.BlackWon:
		return domain.WinFor(domain.Black, domain.ReasonCheckmate)
	case nchess.Draw:
		return domain.DrawBy(drawReason(game.Method()))
	default:
		return nil
	}
}

func drawReason(m nchess.Method) domain.Reason {
	switch m {
	case nchess.Stalemate:
		return domain.ReasonStalemate
	case nchess.InsufficientMaterial:
		return domain.ReasonInsufficientMaterial
	case nchess.FivefoldRepetition:
		return domain.ReasonFivefoldRepetition
	case nchess.SeventyFiveMoveRule:
		return domain.ReasonSeventyFiveMoveRule
	case nchess.ThreefoldRepetition:
		return domain.Reason("threefold_repetition")
	case nchess.FiftyMoveRule:
		return domain.Reason("fifty_move_rule")
	default:
		return domain.Reason("draw")
	}
}
