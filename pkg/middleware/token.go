package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// contextKeySessionToken はGinコンテキストにセッショントークンを格納するキー。
const contextKeySessionToken = "session_token"

// SessionToken はCookieまたはヘッダーからセッショントークンを取り出すGinミドルウェアを返す。
// ヘッダーが優先される。トークンの検証は行わず、提示の有無にかかわらず後続へ進む。
func SessionToken(cookieName, headerName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(headerName))
		if token == "" {
			if v, err := c.Cookie(cookieName); err == nil {
				token = strings.TrimSpace(v)
			}
		}
		if token != "" {
			c.Set(contextKeySessionToken, token)
		}
		c.Next()
	}
}

// GetSessionToken はGinコンテキストからセッショントークンを取得する。
// SessionTokenミドルウェアが事前に適用されている必要がある。
func GetSessionToken(c *gin.Context) string {
	return c.GetString(contextKeySessionToken)
}
