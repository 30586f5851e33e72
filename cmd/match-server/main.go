package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/cheese-match/internal/config"
	"github.com/park285/cheese-match/internal/matchbuilder"
	"github.com/park285/cheese-match/internal/obslog"
)

func main() {
	if err := appcfg.LoadDotEnv(os.Getenv("DOTENV_FILE")); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	flush, err := obslog.InitFromEnv("match-server", true)
	if err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer flush()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	deps, err := matchbuilder.New(cfg, logger)
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close()

	// match-server token <player-id> prints a credential for local testing.
	if len(os.Args) > 2 && os.Args[1] == "token" {
		if deps.JWT == nil {
			log.Fatal("token issuing requires AUTH_MODE=jwt")
		}
		tok, err := deps.JWT.Issue(os.Args[2])
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		_ = deps.Coordinator.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           deps.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_serve_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	<-coordDone
	logger.Info("shutdown_complete")
}
