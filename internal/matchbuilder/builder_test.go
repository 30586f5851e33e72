package matchbuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/park285/cheese-match/internal/config"
)

func TestNewWithJWTAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.AppConfig{
		AuthMode:      config.AuthModeJWT,
		JWTSecret:     "secret",
		JWTTTL:        time.Hour,
		RedisURL:      "redis://" + mr.Addr() + "/0",
		SnapshotTTL:   time.Hour,
		SweepInterval: 50 * time.Millisecond,
	}
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	if d.Store == nil || d.JWT == nil || d.Archive != nil || d.Roster != nil {
		t.Fatalf("deps = %+v", d)
	}

	tok, err := d.JWT.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}
	if id, err := d.JWT.Authenticate(context.Background(), tok); err != nil || id != "alice" {
		t.Fatalf("authenticate = %q, %v", id, err)
	}

	rec := httptest.NewRecorder()
	d.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestNewAccountsMode(t *testing.T) {
	cfg := &config.AppConfig{
		AuthMode:        config.AuthModeAccounts,
		AccountsBaseURL: "http://accounts.invalid",
		RosterBaseURL:   "http://roster.invalid",
	}
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer d.Close()
	if d.Accounts == nil || d.Roster == nil || d.Store != nil {
		t.Fatalf("deps = %+v", d)
	}
}

func TestNewRejectsBadRedis(t *testing.T) {
	cfg := &config.AppConfig{AuthMode: config.AuthModeJWT, JWTSecret: "s", RedisURL: "http://nope"}
	if _, err := New(cfg, nil); err == nil {
		t.Fatalf("expected error for bad redis url")
	}
}

func TestServiceHeaders(t *testing.T) {
	if h := serviceHeaders("")(); h != nil {
		t.Fatalf("headers = %v", h)
	}
	if h := serviceHeaders("t")(); h["Authorization"] != "Bearer t" {
		t.Fatalf("headers = %v", h)
	}
}
