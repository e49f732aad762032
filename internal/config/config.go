// Package config は環境変数（および .env ファイル）からゲートウェイの設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/internal/upstream"
)

// DefaultSessionSecret は開発用のセッション署名鍵。本番では必ず上書きすること。
const DefaultSessionSecret = "dev-secret-key"

// Config はゲートウェイの実行時設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// Upstreams は転送先の設定。UPSTREAMS_FILE の上書きを適用済み。
	Upstreams []upstream.Target
	// AuthBaseURL はログインエンドポイントのベースURL。
	AuthBaseURL string
	// TokenRefreshURL はリフレッシュエンドポイントの完全なURL。
	TokenRefreshURL string
	// SessionSecret はセッショントークンのHS256署名鍵。
	SessionSecret string
	// SessionMaxAge はセッショントークンとクッキーの有効期間。
	SessionMaxAge time.Duration
	// RefreshLeeway はアクセストークンを期限切れとみなす前倒し時間。
	RefreshLeeway time.Duration
	// ProxyTimeout は共有HTTPクライアントのタイムアウト。
	ProxyTimeout time.Duration
	// ProxyMaxBodyBytes は受信ボディとアップストリーム応答の上限。
	ProxyMaxBodyBytes int64
	// RateLimitRPM はクライアントIPごとの毎分リクエスト数。0以下で無効。
	RateLimitRPM int
	// JournalPath はセッションジャーナルのSQLiteファイル。空で無効。
	JournalPath string
	LogLevel    string
	LogEncoding string
}

// UsesDefaultSecret は開発用の署名鍵のまま起動しようとしているかどうかを返す。
func (c Config) UsesDefaultSecret() bool {
	return c.SessionSecret == DefaultSessionSecret
}

// Load は環境変数から設定を読み込む。.env ファイルがあれば先に読み込む。
func Load() (Config, error) {
	_ = godotenv.Load()

	settings := upstream.Settings{
		LotteryURL:   getEnv("LOTTERY_API_URL", "http://localhost:4000"),
		ForumURL:     getEnv("FORUM_API_URL", "http://localhost:4100"),
		RapidAPIURL:  getEnv("RAPIDAPI_URL", "https://lottery-results.p.rapidapi.com"),
		RapidAPIKey:  getEnv("RAPIDAPI_KEY", ""),
		RapidAPIHost: getEnv("RAPIDAPI_HOST", "lottery-results.p.rapidapi.com"),
		ScraperAURL:  getEnv("SCRAPER_A_URL", "http://localhost:5000"),
		ScraperBURL:  getEnv("SCRAPER_B_URL", "http://localhost:5100"),
	}
	targets, err := upstream.ApplyFile(getEnv("UPSTREAMS_FILE", ""), upstream.Defaults(settings))
	if err != nil {
		return Config{}, err
	}

	authBase := strings.TrimRight(getEnv("AUTH_BASE_URL", settings.LotteryURL), "/")

	// 数値と期間は不正な値をまとめて報告する
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := getDuration(key, def)
		errs = append(errs, err)
		return d
	}
	maxBody, err := getInt64("PROXY_MAX_BODY_BYTES", 10<<20)
	errs = append(errs, err)
	rpm, err := getInt("RATE_LIMIT_RPM", 600)
	errs = append(errs, err)

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		Upstreams:         targets,
		AuthBaseURL:       authBase,
		TokenRefreshURL:   getEnv("TOKEN_REFRESH_URL", authBase+"/auth/refresh-token"),
		SessionSecret:     getEnv("SESSION_SECRET", DefaultSessionSecret),
		SessionMaxAge:     duration("SESSION_MAX_AGE", session.DefaultTTL),
		RefreshLeeway:     duration("TOKEN_REFRESH_LEEWAY", 0),
		ProxyTimeout:      duration("PROXY_TIMEOUT", 30*time.Second),
		ProxyMaxBodyBytes: maxBody,
		RateLimitRPM:      rpm,
		JournalPath:       getEnv("JOURNAL_PATH", "/data/edgegate.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogEncoding:       getEnv("LOG_ENCODING", "json"),
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET は空にできません")
	}
	if cfg.ProxyTimeout <= 0 {
		return Config{}, fmt.Errorf("PROXY_TIMEOUT は正の値である必要があります: %s", cfg.ProxyTimeout)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// getDuration は期間を読み込む。未設定や空の場合は既定値を返し、解釈できない値はエラーにする。
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s は有効な期間である必要があります: %q", key, v)
	}
	return d, nil
}

// getInt は整数を読み込む。負の値も受け付ける。
func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s は整数である必要があります: %q", key, v)
	}
	return n, nil
}

// getInt64 は上限値を読み込む。0以下や不正な値はエラーにする。
func getInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s は正の整数である必要があります: %q", key, v)
	}
	return n, nil
}
