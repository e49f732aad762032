// エッジゲートウェイのエントリポイント。
// ブラウザからのリクエストを論理名で指定されたアップストリームへ転送し、
// ログインセッションとトークンのリフレッシュを管理する。
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nao1215/edgegate/internal/auth"
	"github.com/nao1215/edgegate/internal/config"
	"github.com/nao1215/edgegate/internal/gateway"
	"github.com/nao1215/edgegate/internal/journal"
	"github.com/nao1215/edgegate/internal/proxy"
	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/internal/upstream"
	"github.com/nao1215/edgegate/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("エッジゲートウェイが異常終了しました", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("エッジゲートウェイを停止しました")
	_ = logger.Sync()
}

// run は依存を組み立ててサーバーを起動し、ctxがキャンセルされるまで待つ。
// 開いたリソースは戻る前にすべて閉じる。
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.UsesDefaultSecret() {
		logger.Warn("開発用のSESSION_SECRETで起動しています。本番環境では必ず設定してください")
	}

	registry := upstream.NewRegistry(cfg.Upstreams...)
	if err := registry.Validate(); err != nil {
		return fmt.Errorf("アップストリーム設定が不正: %w", err)
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	client := &http.Client{Timeout: cfg.ProxyTimeout}

	authenticator := auth.New(auth.Config{
		BaseURL:    cfg.AuthBaseURL,
		RefreshURL: cfg.TokenRefreshURL,
	}, client, logger.Named("auth"), collector)

	opts := []session.Option{
		session.WithLeeway(cfg.RefreshLeeway),
		session.WithLogger(logger.Named("session")),
		session.WithObserver(collector),
	}
	deps := gateway.Deps{
		Port:          cfg.Port,
		Registry:      registry,
		Forwarder:     proxy.NewForwarder(client, logger.Named("proxy"), collector, cfg.ProxyMaxBodyBytes),
		Authenticator: authenticator,
		Codec:         session.NewCodec(cfg.SessionSecret, cfg.SessionMaxAge),
		Metrics:       collector,
		Logger:        logger,
		RateLimitRPM:  cfg.RateLimitRPM,
		MaxBodyBytes:  cfg.ProxyMaxBodyBytes,
	}

	if cfg.JournalPath != "" {
		store, err := journal.Open(ctx, cfg.JournalPath, logger.Named("journal"))
		if err != nil {
			return fmt.Errorf("セッションジャーナル %s の初期化に失敗: %w", cfg.JournalPath, err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("セッションジャーナルのクローズに失敗", zap.Error(err))
			}
		}()
		deps.Journal = store
		opts = append(opts, session.WithRecorder(store), session.WithTerminalLookup(store))
	} else {
		logger.Info("JOURNAL_PATHが未設定のためセッションジャーナルは無効です")
	}
	deps.Manager = session.NewManager(authenticator, opts...)

	server := gateway.NewServer(deps)
	logger.Info("エッジゲートウェイを起動します",
		zap.String("port", cfg.Port),
		zap.Strings("upstreams", registry.Names()),
	)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("エッジゲートウェイの起動に失敗: %w", err)
	}
	return nil
}

// initLogger はLOG_LEVELとLOG_ENCODINGに従ってzapのロガーを構築する。
func initLogger(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.ToLower(encoding) != "json" {
		cfg.Encoding = "console"
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))
	return cfg.Build()
}

func parseLogLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
