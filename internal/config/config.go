package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/cheese-match/internal/domain"
)

const (
	AuthModeJWT      = "jwt"
	AuthModeAccounts = "accounts"
)

// AppConfig is the match server configuration.
type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	AuthMode        string
	JWTSecret       string
	JWTTTL          time.Duration
	AccountsBaseURL string
	RosterBaseURL   string
	ServiceToken    string

	RedisURL    string
	DatabaseURL string
	SnapshotTTL time.Duration

	DefaultTimeControl domain.TimeControl
	SweepInterval      time.Duration
	GameRetention      time.Duration
	PeerSendBuffer     int
	MailboxSize        int
}

// ClientConfig is the terminal client configuration.
type ClientConfig struct {
	WSURL       string
	Token       string
	GameID      string
	Locale      string
	MsgcatDir   string
	MaxAttempts int
	RetryDelay  time.Duration
}

// LoadDotEnv preloads variables from path (default ".env") if the file exists.
// Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		AuthMode:       AuthModeJWT,
		JWTTTL:         24 * time.Hour,
		SnapshotTTL:    24 * time.Hour,
		SweepInterval:  100 * time.Millisecond,
		GameRetention:  5 * time.Minute,
		PeerSendBuffer: 64,
		MailboxSize:    256,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = splitList(env("ALLOWED_ORIGINS"))

	if v := strings.ToLower(env("AUTH_MODE")); v != "" {
		cfg.AuthMode = v
	}
	cfg.JWTSecret = env("JWT_SECRET")
	if n, ok := positiveInt("JWT_TTL_SEC"); ok {
		cfg.JWTTTL = time.Duration(n) * time.Second
	}
	cfg.AccountsBaseURL = env("ACCOUNTS_BASE_URL")
	cfg.RosterBaseURL = env("ROSTER_BASE_URL")
	cfg.ServiceToken = env("SERVICE_TOKEN")

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")
	if n, ok := positiveInt("SNAPSHOT_TTL_SEC"); ok {
		cfg.SnapshotTTL = time.Duration(n) * time.Second
	}

	if v := env("DEFAULT_TIME_CONTROL"); v != "" {
		tc, err := domain.ParseTimeControl(v)
		if err != nil {
			return nil, fmt.Errorf("DEFAULT_TIME_CONTROL: %w", err)
		}
		cfg.DefaultTimeControl = tc
	}
	if n, ok := positiveInt("SWEEP_INTERVAL_MS"); ok {
		cfg.SweepInterval = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("GAME_RETENTION_SEC"); ok {
		cfg.GameRetention = time.Duration(n) * time.Second
	}
	if n, ok := positiveInt("PEER_SEND_BUFFER"); ok {
		cfg.PeerSendBuffer = n
	}
	if n, ok := positiveInt("GAME_MAILBOX_SIZE"); ok {
		cfg.MailboxSize = n
	}

	switch cfg.AuthMode {
	case AuthModeJWT:
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case AuthModeAccounts:
		if cfg.AccountsBaseURL == "" {
			return nil, errors.New("ACCOUNTS_BASE_URL is required when AUTH_MODE=accounts")
		}
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		Locale:      "en",
		MaxAttempts: 10,
		RetryDelay:  time.Second,
	}
	cfg.WSURL = env("MATCH_WS_URL")
	cfg.Token = env("MATCH_TOKEN")
	cfg.GameID = env("MATCH_GAME_ID")
	cfg.MsgcatDir = env("MSGCAT_DIR")
	if v := env("MATCH_LOCALE"); v != "" {
		cfg.Locale = v
	}
	if n, ok := positiveInt("MATCH_RECONNECT_ATTEMPTS"); ok {
		cfg.MaxAttempts = n
	}
	if n, ok := positiveInt("MATCH_RECONNECT_DELAY_MS"); ok {
		cfg.RetryDelay = time.Duration(n) * time.Millisecond
	}

	if cfg.WSURL == "" {
		return nil, errors.New("MATCH_WS_URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("MATCH_TOKEN is required")
	}
	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func positiveInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
