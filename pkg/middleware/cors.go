package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	// AllowOrigin はAccess-Control-Allow-Originの値。
	AllowOrigin string
	// AllowMethods は許可するHTTPメソッド。
	AllowMethods []string
	// AllowHeaders は常に許可するリクエストヘッダー。
	AllowHeaders []string
	// ExtraHeaders はリクエストごとに追加で許可するヘッダーを返す。nilでもよい。
	ExtraHeaders func(c *gin.Context) []string
}

// DefaultCORSConfig は全オリジンを許可する既定の設定を返す。
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:  "*",
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}
}

// CORS はクロスオリジンリクエストを許可するGinミドルウェアを返す。
// OPTIONSリクエストには空のボディと200で即座に応答し、後続のハンドラは呼ばない。
// それ以外のリクエストでは後続の処理結果に関係なく同じヘッダーを付与する。
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if cfg.AllowOrigin == "" {
		cfg.AllowOrigin = "*"
	}
	methods := strings.Join(cfg.AllowMethods, ",")

	return func(c *gin.Context) {
		headers := cfg.AllowHeaders
		if cfg.ExtraHeaders != nil {
			headers = appendUnique(headers, cfg.ExtraHeaders(c))
		}

		c.Header("Access-Control-Allow-Origin", cfg.AllowOrigin)
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", strings.Join(headers, ", "))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// appendUnique はbaseにextraのうち未登録のヘッダーを追加した新しいスライスを返す。
func appendUnique(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, h := range list {
			key := http.CanonicalHeaderKey(h)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}
