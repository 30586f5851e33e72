package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-match/internal/adapter/matchpresenter"
	appcfg "github.com/park285/cheese-match/internal/config"
	"github.com/park285/cheese-match/internal/msgcat"
	"github.com/park285/cheese-match/internal/obslog"
	"github.com/park285/cheese-match/internal/participant"
	"github.com/park285/cheese-match/internal/rules"
	"github.com/park285/cheese-match/internal/transport/wsclient"
	"github.com/park285/cheese-match/pkg/matchproto"
)

func main() {
	if err := appcfg.LoadDotEnv(os.Getenv("DOTENV_FILE")); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	// stdout belongs to the board; logs go to the file unless LOG_TO_CONSOLE=true.
	flush, err := obslog.InitFromEnv("match-client", false)
	if err != nil {
		log.Fatalf("log init error: %v", err)
	}
	defer flush()
	logger := obslog.L()

	cfg, err := appcfg.LoadClient()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.GameID == "" {
		cfg.GameID = uuid.NewString()
		fmt.Printf("New game id: %s (share it with your opponent)\n", cfg.GameID)
	}

	cat, err := msgcat.New(cfg.Locale, cfg.MsgcatDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}
	presenter := matchpresenter.NewPresenter(os.Stdout, matchpresenter.NewFormatter(cat))

	ws := wsclient.NewWebSocket(cfg.WSURL, cfg.MaxAttempts, cfg.RetryDelay)
	ws.OnEvent(func(ev *matchproto.Event) {
		if ev.Type == matchproto.EventGameState || ev.Type == matchproto.EventAuthSuccess {
			return
		}
		_ = presenter.Notice(ev)
	})
	session := participant.New(ws, rules.NewStandard(),
		participant.WithLogger(logger.Named("session")),
		participant.WithOnChange(func(v participant.View) { _ = presenter.Render(v) }),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = session.Start(cctx, cfg.Token, cfg.GameID)
	cancel()
	if err != nil {
		logger.Warn("connect_failed", zap.Error(err))
		fmt.Printf("connect error: %v (retrying in background)\n", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			shutdown(session)
			return
		case line, ok := <-lines:
			if !ok {
				shutdown(session)
				return
			}
			if quit := handleLine(ctx, session, presenter, line); quit {
				shutdown(session)
				return
			}
		}
	}
}

func handleLine(ctx context.Context, s *participant.Session, p *matchpresenter.Presenter, line string) bool {
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return false
	}
	var err error
	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return true
	case "help", "?":
		err = p.Help()
	case "board":
		err = p.Redraw(s.View())
	case "resign":
		err = s.Resign(ctx)
	case "draw":
		err = s.OfferDraw(ctx)
	case "accept":
		err = s.AcceptDraw(ctx)
	case "reject":
		err = s.RejectDraw(ctx)
	default:
		err = s.SubmitMove(ctx, rules.MoveRequest{Notation: cmd})
	}
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
	return false
}

func shutdown(s *participant.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.Close(ctx)
}
