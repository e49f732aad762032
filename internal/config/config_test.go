package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/internal/upstream"
)

// t.Setenv を使うためこのファイルのテストは並列実行しない。

// TestLoad は環境変数からの設定読み込みを検証する。
func TestLoad(t *testing.T) {
	t.Run("未設定の場合は既定値が使われること", func(t *testing.T) {
		for _, key := range []string{
			"PORT", "LOTTERY_API_URL", "AUTH_BASE_URL", "TOKEN_REFRESH_URL", "SESSION_SECRET",
			"SESSION_MAX_AGE", "TOKEN_REFRESH_LEEWAY", "PROXY_TIMEOUT", "PROXY_MAX_BODY_BYTES",
			"RATE_LIMIT_RPM", "UPSTREAMS_FILE", "JOURNAL_PATH",
		} {
			unsetEnv(t, key)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8080")
		}
		if cfg.AuthBaseURL != "http://localhost:4000" {
			t.Errorf("AuthBaseURL = %q, want %q", cfg.AuthBaseURL, "http://localhost:4000")
		}
		if cfg.TokenRefreshURL != "http://localhost:4000/auth/refresh-token" {
			t.Errorf("TokenRefreshURL = %q, want %q", cfg.TokenRefreshURL, "http://localhost:4000/auth/refresh-token")
		}
		if !cfg.UsesDefaultSecret() {
			t.Error("既定の署名鍵が使われていない")
		}
		if cfg.SessionMaxAge != session.DefaultTTL {
			t.Errorf("SessionMaxAge = %v, want %v", cfg.SessionMaxAge, session.DefaultTTL)
		}
		if cfg.ProxyTimeout != 30*time.Second {
			t.Errorf("ProxyTimeout = %v, want 30s", cfg.ProxyTimeout)
		}
		if cfg.ProxyMaxBodyBytes != 10<<20 {
			t.Errorf("ProxyMaxBodyBytes = %d, want %d", cfg.ProxyMaxBodyBytes, 10<<20)
		}
		if cfg.RateLimitRPM != 600 {
			t.Errorf("RateLimitRPM = %d, want 600", cfg.RateLimitRPM)
		}
		if len(cfg.Upstreams) != len(upstream.Kinds()) {
			t.Errorf("len(Upstreams) = %d, want %d", len(cfg.Upstreams), len(upstream.Kinds()))
		}
		if err := upstream.NewRegistry(cfg.Upstreams...).Validate(); err != nil {
			t.Errorf("既定のアップストリーム設定が検証に失敗: %v", err)
		}
	})

	t.Run("環境変数で上書きできること", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("LOTTERY_API_URL", "http://lottery.internal/")
		unsetEnv(t, "AUTH_BASE_URL")
		unsetEnv(t, "TOKEN_REFRESH_URL")
		t.Setenv("SESSION_SECRET", "prod-secret")
		t.Setenv("TOKEN_REFRESH_LEEWAY", "15s")
		t.Setenv("PROXY_TIMEOUT", "5s")
		t.Setenv("RATE_LIMIT_RPM", "0")
		t.Setenv("JOURNAL_PATH", "")
		unsetEnv(t, "UPSTREAMS_FILE")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("Port = %q, want %q", cfg.Port, "9090")
		}
		if cfg.AuthBaseURL != "http://lottery.internal" {
			t.Errorf("AuthBaseURL = %q, want %q", cfg.AuthBaseURL, "http://lottery.internal")
		}
		if cfg.TokenRefreshURL != "http://lottery.internal/auth/refresh-token" {
			t.Errorf("TokenRefreshURL = %q, want %q", cfg.TokenRefreshURL, "http://lottery.internal/auth/refresh-token")
		}
		if cfg.UsesDefaultSecret() {
			t.Error("上書きした署名鍵が使われていない")
		}
		if cfg.RefreshLeeway != 15*time.Second {
			t.Errorf("RefreshLeeway = %v, want 15s", cfg.RefreshLeeway)
		}
		if cfg.ProxyTimeout != 5*time.Second {
			t.Errorf("ProxyTimeout = %v, want 5s", cfg.ProxyTimeout)
		}
		if cfg.RateLimitRPM != 0 {
			t.Errorf("RateLimitRPM = %d, want 0", cfg.RateLimitRPM)
		}
		if cfg.JournalPath != "" {
			t.Errorf("JournalPath = %q, want 空", cfg.JournalPath)
		}
	})

	t.Run("不正な期間や整数はエラーになること", func(t *testing.T) {
		tests := []struct {
			key   string
			value string
		}{
			{key: "PROXY_TIMEOUT", value: "soon"},
			{key: "SESSION_MAX_AGE", value: "24"},
			{key: "TOKEN_REFRESH_LEEWAY", value: "1 minute"},
			{key: "RATE_LIMIT_RPM", value: "many"},
		}
		for _, tt := range tests {
			t.Run(tt.key, func(t *testing.T) {
				unsetEnv(t, "UPSTREAMS_FILE")
				t.Setenv(tt.key, tt.value)

				_, err := Load()
				if err == nil {
					t.Fatal("Load()がエラーを返さなかった")
				}
				if !strings.Contains(err.Error(), tt.key) {
					t.Errorf("error = %v, want %s を含む", err, tt.key)
				}
			})
		}
	})

	t.Run("複数の不正な値はまとめて報告されること", func(t *testing.T) {
		unsetEnv(t, "UPSTREAMS_FILE")
		t.Setenv("PROXY_TIMEOUT", "soon")
		t.Setenv("RATE_LIMIT_RPM", "many")

		_, err := Load()
		if err == nil {
			t.Fatal("Load()がエラーを返さなかった")
		}
		for _, key := range []string{"PROXY_TIMEOUT", "RATE_LIMIT_RPM"} {
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error = %v, want %s を含む", err, key)
			}
		}
	})

	t.Run("空の期間や整数は既定値になること", func(t *testing.T) {
		unsetEnv(t, "UPSTREAMS_FILE")
		t.Setenv("PROXY_TIMEOUT", "")
		t.Setenv("RATE_LIMIT_RPM", "")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.ProxyTimeout != 30*time.Second {
			t.Errorf("ProxyTimeout = %v, want 30s", cfg.ProxyTimeout)
		}
		if cfg.RateLimitRPM != 600 {
			t.Errorf("RateLimitRPM = %d, want 600", cfg.RateLimitRPM)
		}
	})

	t.Run("不正なボディ上限はエラーになること", func(t *testing.T) {
		unsetEnv(t, "UPSTREAMS_FILE")
		t.Setenv("PROXY_MAX_BODY_BYTES", "-1")

		if _, err := Load(); err == nil {
			t.Error("Load()がエラーを返さなかった")
		}
	})

	t.Run("空の署名鍵はエラーになること", func(t *testing.T) {
		unsetEnv(t, "UPSTREAMS_FILE")
		t.Setenv("SESSION_SECRET", "")

		if _, err := Load(); err == nil {
			t.Error("Load()がエラーを返さなかった")
		}
	})

	t.Run("UPSTREAMS_FILEで転送設定を上書きできること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "upstreams.yaml")
		content := "upstreams:\n  forum:\n    base_url: http://forum.internal/\n    auth: required\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("設定ファイルの作成に失敗: %v", err)
		}
		t.Setenv("UPSTREAMS_FILE", path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		got, err := upstream.NewRegistry(cfg.Upstreams...).Resolve("forum")
		if err != nil {
			t.Fatalf("Resolve()でエラーが発生: %v", err)
		}
		if got.BaseURL != "http://forum.internal" {
			t.Errorf("BaseURL = %q, want %q", got.BaseURL, "http://forum.internal")
		}
		if got.Auth != upstream.AuthRequired {
			t.Errorf("Auth = %q, want %q", got.Auth, upstream.AuthRequired)
		}
	})

	t.Run("存在しないUPSTREAMS_FILEはエラーになること", func(t *testing.T) {
		t.Setenv("UPSTREAMS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

		if _, err := Load(); err == nil {
			t.Error("Load()がエラーを返さなかった")
		}
	})
}

// unsetEnv はテスト終了時に元の値へ戻す前提で環境変数を削除する。
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("環境変数 %s の削除に失敗: %v", key, err)
	}
}
