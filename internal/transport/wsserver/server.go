// Package wsserver exposes the coordinator over HTTP: the WebSocket endpoint plus a
// few read-only JSON routes.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-match/internal/coordinator"
	"github.com/park285/cheese-match/internal/domain"
	"github.com/park285/cheese-match/pkg/matchproto"
)

// Coordinator is the part of the match coordinator the transport drives.
type Coordinator interface {
	Connect(p coordinator.Peer)
	Disconnect(p coordinator.Peer)
	Handle(ctx context.Context, p coordinator.Peer, in matchproto.Intent)
	Snapshot(ctx context.Context, gameID string) (matchproto.GameState, error)
	PlayerGames(ctx context.Context, playerID string) ([]string, error)
	ActiveGames() int
}

type Config struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

type Server struct {
	cfg    Config
	coord  Coordinator
	log    *zap.Logger
	router *gin.Engine
}

func New(cfg Config, coord Coordinator, log *zap.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 16 << 10
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cfg: cfg, coord: coord, log: log}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.accessLog())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAny(s.cfg.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/ws", s.serveWS)
	router.GET("/healthz", s.health)
	router.GET("/games/:id", s.gameSnapshot)
	router.GET("/players/:id/games", s.playerGames)
	return router
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "games": s.coord.ActiveGames()})
}

func (s *Server) gameSnapshot(c *gin.Context) {
	st, err := s.coord.Snapshot(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case err != nil:
		s.log.Warn("snapshot_failed", zap.String("game_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot unavailable"})
	default:
		c.JSON(http.StatusOK, st)
	}
}

func (s *Server) playerGames(c *gin.Context) {
	ids, err := s.coord.PlayerGames(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.log.Warn("player_games_failed", zap.String("player_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"player_id": c.Param("id"), "games": ids})
}

func (s *Server) serveWS(c *gin.Context) {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	if allowsAny(s.cfg.AllowedOrigins) {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = originPatterns(s.cfg.AllowedOrigins)
	}
	ws, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		s.log.Info("ws_accept_failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	p := newPeer(coordinator.NewPeerID(), ws, s.cfg.SendBuffer)
	s.coord.Connect(p)
	s.log.Info("ws_connected", zap.String("peer_id", p.id), zap.String("remote", c.ClientIP()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(ctx, p)
	}()

	s.readLoop(ctx, p)
	s.coord.Disconnect(p)
	p.Close("connection closed")
	cancel()
	wg.Wait()
	s.log.Info("ws_closed", zap.String("peer_id", p.id), zap.String("reason", p.reason()))
}

func (s *Server) readLoop(ctx context.Context, p *peer) {
	for {
		typ, data, err := p.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var in matchproto.Intent
		if err := json.Unmarshal(data, &in); err != nil || in.Type == "" {
			p.Send(matchproto.Event{
				Type:         matchproto.EventError,
				Error:        &matchproto.ErrorBody{Code: string(domain.KindBadRequest), Message: "malformed intent"},
				ServerTimeMs: time.Now().UnixMilli(),
			})
			continue
		}
		s.coord.Handle(ctx, p, in)
	}
}

func (s *Server) writePump(ctx context.Context, p *peer) {
	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.ws.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case <-p.done:
			_ = p.ws.Close(websocket.StatusPolicyViolation, p.reason())
			return
		case ev := <-p.send:
			wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := wsjson.Write(wctx, p.ws, ev)
			cancel()
			if err != nil {
				p.Close("write failed")
				_ = p.ws.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			err := p.ws.Ping(pctx)
			cancel()
			if err != nil {
				p.Close("ping failed")
				_ = p.ws.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// originPatterns strips schemes; nhooyr matches origin hosts.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
