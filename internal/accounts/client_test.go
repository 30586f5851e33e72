package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-match/internal/domain"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithTimeout(2*time.Second))
}

func TestAuthenticate(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions/verify" {
			http.NotFound(w, r)
			return
		}
		var body verifyRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Credential != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{PlayerID: "alice"})
	})

	id, err := c.Authenticate(context.Background(), "good")
	if err != nil || id != "alice" {
		t.Fatalf("Authenticate: %q %v", id, err)
	}
	if _, err := c.Authenticate(context.Background(), "bad"); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("bad credential err=%v", err)
	}
	if _, err := c.Authenticate(context.Background(), ""); !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("empty credential err=%v", err)
	}
}

func TestAuthenticate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(verifyResponse{PlayerID: "bob"})
	})
	id, err := c.Authenticate(context.Background(), "x")
	if err != nil || id != "bob" {
		t.Fatalf("Authenticate: %q %v", id, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestPairing(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/games/t-1/pairing":
			_ = json.NewEncoder(w).Encode(pairingResponse{GameID: "t-1", WhiteID: "alice", BlackID: "bob", TimeControl: "3+2"})
		case "/games/bad/pairing":
			_ = json.NewEncoder(w).Encode(pairingResponse{TimeControl: "soon"})
		default:
			http.NotFound(w, r)
		}
	})

	p, ok, err := c.Pairing(context.Background(), "t-1")
	if err != nil || !ok {
		t.Fatalf("Pairing: ok=%v err=%v", ok, err)
	}
	want := domain.TimeControl{InitialMs: 180_000, IncrementMs: 2_000}
	if p.WhiteID != "alice" || p.BlackID != "bob" || p.TimeControl != want {
		t.Fatalf("pairing=%+v", p)
	}
	if _, ok, err := c.Pairing(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("unknown game: ok=%v err=%v", ok, err)
	}
	if _, _, err := c.Pairing(context.Background(), "bad"); err == nil {
		t.Fatalf("expected time control error")
	}
}
