// Package matchbuilder wires configuration into a running coordinator and its HTTP front.
package matchbuilder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-match/internal/accounts"
	"github.com/park285/cheese-match/internal/archive"
	"github.com/park285/cheese-match/internal/auth"
	"github.com/park285/cheese-match/internal/config"
	"github.com/park285/cheese-match/internal/coordinator"
	"github.com/park285/cheese-match/internal/matchstore"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/internal/transport/wsserver"
)

type Deps struct {
	Coordinator *coordinator.Coordinator
	Server      *wsserver.Server
	Store       *matchstore.Store   // nil without REDIS_URL
	Archive     *archive.Repository // nil without DATABASE_URL
	JWT         *auth.JWT           // nil unless AUTH_MODE=jwt
	Accounts    *accounts.Client    // nil unless AUTH_MODE=accounts
	Roster      *accounts.Client    // nil without ROSTER_BASE_URL
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	engine := rules.NewStandard()
	cdeps := coordinator.Deps{Engine: engine, Logger: logger.Named("coordinator")}

	switch cfg.AuthMode {
	case config.AuthModeJWT:
		j, err := auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
		if err != nil {
			return nil, fmt.Errorf("init jwt: %w", err)
		}
		d.JWT = j
		cdeps.Auth = j
	case config.AuthModeAccounts:
		d.Accounts = accounts.NewClient(cfg.AccountsBaseURL, accounts.WithHeaderProvider(serviceHeaders(cfg.ServiceToken)))
		cdeps.Auth = d.Accounts
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}

	if strings.TrimSpace(cfg.RosterBaseURL) != "" {
		d.Roster = accounts.NewClient(cfg.RosterBaseURL, accounts.WithHeaderProvider(serviceHeaders(cfg.ServiceToken)))
		cdeps.Seeder = d.Roster
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		store, err := matchstore.New(cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("init match store: %w", err)
		}
		d.Store = store
		cdeps.Store = store
	} else {
		logger.Warn("match_store_disabled", zap.String("reason", "REDIS_URL not set"))
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL, engine)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init archive: %w", err)
		}
		d.Archive = repo
		cdeps.Archive = repo
	}

	d.Coordinator = coordinator.New(coordinator.Config{
		DefaultTimeControl: cfg.DefaultTimeControl,
		SweepInterval:      cfg.SweepInterval,
		Retention:          cfg.GameRetention,
		MailboxSize:        cfg.MailboxSize,
		IOTimeout:          3 * time.Second,
	}, cdeps)

	d.Server = wsserver.New(wsserver.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.PeerSendBuffer,
	}, d.Coordinator, logger.Named("ws"))

	logger.Info("match_deps_ready",
		zap.String("auth_mode", cfg.AuthMode),
		zap.Bool("store", d.Store != nil),
		zap.Bool("archive", d.Archive != nil),
		zap.Bool("roster", d.Roster != nil),
		zap.String("default_time_control", cfg.DefaultTimeControl.String()),
	)
	return d, nil
}

// Close releases the store and archive connections.
func (d *Deps) Close() error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Archive != nil {
		errs = append(errs, d.Archive.Close())
	}
	return errors.Join(errs...)
}

func serviceHeaders(token string) accounts.HeaderProvider {
	return func() map[string]string {
		if token == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + token}
	}
}
