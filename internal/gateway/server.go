package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edgegate/internal/auth"
	"github.com/nao1215/edgegate/internal/proxy"
	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/internal/upstream"
	"github.com/nao1215/edgegate/pkg/event"
	"github.com/nao1215/edgegate/pkg/metrics"
	"github.com/nao1215/edgegate/pkg/middleware"
)

const (
	// SessionCookieName はセッショントークンを保持するクッキー名。
	SessionCookieName = "edgegate_session"
	// HeaderSessionToken はセッショントークンを運ぶヘッダー。再発行時の応答にも使う。
	HeaderSessionToken = "X-Session-Token"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Journal はセッションイベントの記録先。
type Journal interface {
	session.Recorder
	// ListByUser はユーザーのイベントを新しい順に返す。
	ListByUser(ctx context.Context, userID string, limit int) ([]event.Event, error)
	// Ping は記録先に到達できるかを確認する。
	Ping(ctx context.Context) error
}

// Deps はServerが利用する依存。すべてmainで一度だけ生成して注入する。
type Deps struct {
	Port          string
	Registry      *upstream.Registry
	Forwarder     *proxy.Forwarder
	Authenticator *auth.Authenticator
	Manager       *session.Manager
	Codec         *session.Codec
	// Journal はnilの場合ジャーナルを無効にする。
	Journal Journal
	Metrics *metrics.Collector
	Logger  *zap.Logger
	// RateLimitRPM は/proxyと/authに適用するクライアントIPごとの毎分リクエスト数。0で無効。
	RateLimitRPM int
	// MaxBodyBytes は受信ボディの上限。
	MaxBodyBytes int64
}

// Server はエッジゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port          string
	registry      *upstream.Registry
	forwarder     *proxy.Forwarder
	authenticator *auth.Authenticator
	manager       *session.Manager
	codec         *session.Codec
	journal       Journal
	metrics       *metrics.Collector
	logger        *zap.Logger
	limiter       *middleware.RateLimiter
	maxBodyBytes  int64
}

// NewServer は新しいServerを生成し、ルーティングを設定する。
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewCollector(nil)
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = proxy.DefaultMaxBodyBytes
	}

	router := gin.New()
	// 末尾スラッシュのリダイレクトはCORSミドルウェアより先に応答してしまう
	router.RedirectTrailingSlash = false

	s := &Server{
		router:        router,
		port:          d.Port,
		registry:      d.Registry,
		forwarder:     d.Forwarder,
		authenticator: d.Authenticator,
		manager:       d.Manager,
		codec:         d.Codec,
		journal:       d.Journal,
		metrics:       d.Metrics,
		logger:        d.Logger,
		limiter:       middleware.NewRateLimiter(d.RateLimitRPM),
		maxBodyBytes:  d.MaxBodyBytes,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler はルーターをhttp.Handlerとして返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルにシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupMiddleware は全ルート共通のミドルウェアを設定する。
// Recoveryを最初に置き、パニック時の500応答にもCORSヘッダーが付くようにする。
func (s *Server) setupMiddleware() {
	cors := middleware.DefaultCORSConfig()
	cors.ExtraHeaders = s.corsHeaders

	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.CORS(cors))
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.RequestMetrics(s.metrics))
	s.router.Use(middleware.SessionToken(SessionCookieName, HeaderSessionToken))
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	proxyGroup := s.router.Group("/proxy")
	proxyGroup.Use(s.limiter.Handler())
	{
		proxyGroup.Any("/:upstream", s.handleProxy())
		proxyGroup.Any("/:upstream/*path", s.handleProxy())
	}

	authGroup := s.router.Group("/auth")
	authGroup.Use(s.limiter.Handler())
	{
		authGroup.POST("/login", s.handleLogin())
		authGroup.POST("/refresh-token", s.handleRefreshToken())
		authGroup.GET("/session", s.handleSession())
		authGroup.POST("/signout", s.handleSignOut())
		authGroup.GET("/events", s.handleEvents())
	}

	s.router.GET("/health", s.handleHealth())
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// corsHeaders はアップストリームごとに追加で許可するヘッダーを返す。
func (s *Server) corsHeaders(c *gin.Context) []string {
	headers := []string{upstream.HeaderClientID, HeaderSessionToken}
	name := c.Param("upstream")
	if name == "" || s.registry == nil {
		return headers
	}
	if target, err := s.registry.Resolve(name); err == nil {
		headers = append(headers, target.CORSHeaders...)
	}
	return headers
}

// handleHealth はヘルスチェックのハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.journal != nil {
			if err := s.journal.Ping(c.Request.Context()); err != nil {
				s.logger.Warn("ジャーナルへの疎通確認に失敗", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "service": "edgegate"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "edgegate"})
	}
}

// record はジャーナルへ記録する。失敗はログに残すだけでリクエストは失敗させない。
func (s *Server) record(ctx context.Context, aggregateID string, aggregateType event.AggregateType, typ event.Type, userID string, data any) {
	if s.journal == nil {
		return
	}
	ev, err := event.New(aggregateID, aggregateType, typ, userID, data)
	if err == nil {
		err = s.journal.Record(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		s.logger.Warn("イベントの記録に失敗",
			zap.String("event_type", string(typ)),
			zap.String("aggregate_id", aggregateID),
			zap.Error(err),
		)
	}
}
