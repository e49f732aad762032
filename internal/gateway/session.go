package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/pkg/httpclient"
	"github.com/nao1215/edgegate/pkg/middleware"
)

// errNoSession はリクエストにセッショントークンが無いことを表す。
var errNoSession = errors.New("no session token")

// loadSession はリクエストのセッショントークンを検証してセッションを復元する。
// トークンが無い場合は errNoSession を返す。
func (s *Server) loadSession(c *gin.Context) (session.Session, error) {
	token := middleware.GetSessionToken(c)
	if token == "" {
		return session.Session{}, errNoSession
	}
	return s.codec.Decode(token)
}

// freshSession はセッションを復元し、アクセストークンの有効性を保証する。
// 失敗した場合は応答を書き込んだうえでfalseを返す。
//   - トークン無し: 401 Authentication required
//   - 改ざん・期限切れ: 401 Invalid session、クッキーを削除
//   - 終端状態: 401 {error:<code>}、クッキーを削除し、終端を記録したトークンをヘッダーで返す
//
// リフレッシュでトークンが更新された場合はセッショントークンを再発行する。
func (s *Server) freshSession(c *gin.Context) (session.Session, bool) {
	sess, err := s.loadSession(c)
	if errors.Is(err, errNoSession) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return session.Session{}, false
	}
	if err != nil {
		s.clearSessionCookie(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
		return session.Session{}, false
	}

	fresh, err := s.manager.EnsureFresh(requestContext(c), sess)
	if errors.Is(err, session.ErrSessionTerminated) {
		s.clearSessionCookie(c)
		// 終端を記録したトークンを返し、以後の提示ではリフレッシュさせない
		if token, encErr := s.codec.Encode(fresh); encErr == nil {
			c.Header(HeaderSessionToken, token)
		} else {
			s.logger.Warn("終端済みセッショントークンの発行に失敗",
				zap.String("session_id", fresh.ID),
				zap.Error(encErr),
			)
		}
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   string(fresh.Error),
			"message": "Re-login required",
		})
		return session.Session{}, false
	}
	if err != nil {
		// クライアント切断などでリフレッシュを中断した。セッションは変更していない。
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Session refresh interrupted",
			"message": err.Error(),
		})
		return session.Session{}, false
	}

	if fresh.Tokens != sess.Tokens {
		if _, ok := s.issueSession(c, fresh); !ok {
			return session.Session{}, false
		}
	}
	return fresh, true
}

// issueSession はセッショントークンを署名して応答ヘッダーとクッキーに設定する。
// 署名に失敗した場合は500を書き込んでfalseを返す。
func (s *Server) issueSession(c *gin.Context, sess session.Session) (string, bool) {
	token, err := s.codec.Encode(sess)
	if err != nil {
		s.logger.Error("セッショントークンの発行に失敗",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue session"})
		return "", false
	}
	c.Header(HeaderSessionToken, token)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(s.codec.TTL().Seconds()), "/", "", c.Request.TLS != nil, true)
	return token, true
}

// clearSessionCookie はセッションクッキーを削除する。
func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

// requestContext は認証APIの呼び出しにリクエストIDを引き継ぐコンテキストを返す。
func requestContext(c *gin.Context) context.Context {
	return httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
}
