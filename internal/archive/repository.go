// Package archive stores finished games in Postgres.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/internal/match"
	"github.com/park285/cheese-match/internal/rules"
)

const schema = `CREATE TABLE IF NOT EXISTS match_games (
    game_id       TEXT PRIMARY KEY,
    white_id      TEXT NOT NULL,
    black_id      TEXT NOT NULL,
    time_control  TEXT NOT NULL,
    result        TEXT NOT NULL,
    reason        TEXT NOT NULL,
    eco           TEXT,
    opening       TEXT,
    moves_uci     JSONB NOT NULL,
    moves_san     JSONB NOT NULL,
    pgn           TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

type Repository struct {
	db     *sql.DB
	engine rules.Engine
	event  string
}

func NewRepository(databaseURL string, engine rules.Engine) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Repository{db: db, engine: engine, event: "Cheese Match"}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished game. Live games are ignored.
func (r *Repository) SaveResult(ctx context.Context, rec match.Record) error {
	if r == nil || r.db == nil || rec.Result == nil {
		return nil
	}
	eco, opening := "", ""
	if r.engine != nil {
		eco, opening = r.engine.Opening(rules.Line{Moves: rec.UCIs()})
	}
	movesUCIRaw, _ := json.Marshal(rec.UCIs())
	movesSANRaw, _ := json.Marshal(rec.SANs())
	duration := max(rec.UpdatedAt.Sub(rec.CreatedAt).Milliseconds(), 0)

	q := `INSERT INTO match_games (
        game_id, white_id, black_id, time_control,
        result, reason, eco, opening, moves_uci, moves_san, pgn,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
      ) ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        reason=EXCLUDED.reason,
        eco=EXCLUDED.eco,
        opening=EXCLUDED.opening,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.Seats.White, rec.Seats.Black, rec.TimeControl.String(),
		rec.Result.PGN(), string(rec.Result.Reason), eco, opening,
		string(movesUCIRaw), string(movesSANRaw), BuildPGN(r.event, rec, eco),
		rec.CreatedAt, rec.UpdatedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("archive %s: %w", rec.ID, err)
	}
	return nil
}

// BuildPGN renders rec as PGN text.
func BuildPGN(event string, rec match.Record, eco string) string {
	var b strings.Builder
	date := rec.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	pgnResult := "*"
	if rec.Result != nil {
		pgnResult = rec.Result.PGN()
	}
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitizePGN(event))
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(rec.ID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(rec.Seats.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(rec.Seats.Black))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", pgnResult)
	if tc := pgnTimeControl(rec.TimeControl); tc != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", tc)
	}
	if eco != "" {
		fmt.Fprintf(&b, "[ECO \"%s\"]\n", sanitizePGN(eco))
	}
	if rec.Result != nil {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", termination(rec.Result.Reason))
	}
	b.WriteString("\n")

	sans := rec.SANs()
	for i := 0; i < len(sans); i += 2 {
		fmt.Fprintf(&b, "%d. %s ", i/2+1, strings.TrimSpace(sans[i]))
		if i+1 < len(sans) {
			b.WriteString(strings.TrimSpace(sans[i+1]))
			b.WriteString(" ")
		}
	}
	b.WriteString(pgnResult)
	return b.String()
}

// pgnTimeControl uses the PGN seconds form, e.g. "180+2".
func pgnTimeControl(tc domain.TimeControl) string {
	if tc.Unlimited() {
		return "-"
	}
	return fmt.Sprintf("%d+%d", tc.InitialMs/1000, tc.IncrementMs/1000)
}

func termination(reason domain.Reason) string {
	if reason == domain.ReasonTimeout {
		return "time forfeit"
	}
	return "normal"
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
