package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/edgegate/internal/proxy"
	"github.com/nao1215/edgegate/internal/upstream"
	"github.com/nao1215/edgegate/pkg/middleware"
)

// handleProxy は /proxy/:upstream/*path をアップストリームへ転送するハンドラを返す。
// OPTIONSはCORSミドルウェアが応答するためここには届かない。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := s.registry.Resolve(c.Param("upstream"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Unknown upstream",
				"message": err.Error(),
			})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Failed to read request body",
				"message": err.Error(),
			})
			return
		}

		header := c.Request.Header.Clone()
		if target.Auth != upstream.AuthNone {
			if !s.authorize(c, target, header) {
				return
			}
		}

		resp, err := s.forwarder.Forward(c.Request.Context(), target, proxy.Request{
			Method:   c.Request.Method,
			Segments: proxy.SplitPath(c.Param("path")),
			RawQuery: c.Request.URL.RawQuery,
			Header:   header,
			Body:     body,
		})
		if err != nil {
			message := err.Error()
			var te *proxy.TransportError
			if errors.As(err, &te) {
				message = te.Cause()
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Proxy request failed",
				"message": message,
			})
			return
		}

		c.Data(resp.Status, resp.ContentType, resp.Payload)
	}
}

// authorize はセッションが提示されていれば有効性を保証し、
// アクセストークンを転送用のAuthorizationヘッダーに設定する。
// 応答を書き込んで処理を打ち切った場合はfalseを返す。
func (s *Server) authorize(c *gin.Context, target upstream.Target, header http.Header) bool {
	if middleware.GetSessionToken(c) == "" && target.Auth == upstream.AuthOptional {
		return true
	}
	sess, ok := s.freshSession(c)
	if !ok {
		return false
	}
	header.Set(upstream.HeaderAuthorization, "Bearer "+sess.Tokens.AccessToken)
	return true
}
