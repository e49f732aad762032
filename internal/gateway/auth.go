package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edgegate/internal/auth"
	"github.com/nao1215/edgegate/internal/journal"
	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/pkg/event"
)

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// loginResponse はログイン成功時の応答。
type loginResponse struct {
	session.View
	// SessionToken は以降のリクエストで提示するセッショントークン。
	SessionToken string `json:"sessionToken"`
}

// handleLogin は資格情報でログインしてセッションを作成するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		ctx := requestContext(c)

		identity, tokens, err := s.authenticator.Authenticate(ctx, auth.Credentials{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			var authErr *auth.AuthenticationError
			if errors.As(err, &authErr) {
				s.record(ctx, req.Username, event.AggregateTypeUser, event.TypeLoginFailed, "",
					event.LoginFailedData{Username: req.Username, Reason: authErr.Message})
				c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Message})
				return
			}
			s.logger.Warn("ログインに失敗", zap.String("username", req.Username), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   auth.DefaultLoginFailedMessage,
				"message": err.Error(),
			})
			return
		}
		if identity == nil || tokens == nil {
			s.record(ctx, req.Username, event.AggregateTypeUser, event.TypeLoginFailed, "",
				event.LoginFailedData{Username: req.Username, Reason: "anonymous"})
			c.JSON(http.StatusUnauthorized, gin.H{"error": auth.DefaultLoginFailedMessage})
			return
		}

		sess := session.New(*identity, *tokens)
		token, ok := s.issueSession(c, sess)
		if !ok {
			return
		}
		s.record(ctx, sess.ID, event.AggregateTypeSession, event.TypeSessionCreated, sess.User.ID,
			event.SessionCreatedData{Username: sess.User.Username, Role: sess.User.Role})

		c.JSON(http.StatusOK, loginResponse{View: session.Project(sess), SessionToken: token})
	}
}

// refreshTokenRequest はリフレッシュ要求のボディ。
type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// handleRefreshToken はリフレッシュトークンを新しいトークンペアと交換するハンドラを返す。
// セッションは使わず、アップストリームのリフレッシュエンドポイントをそのまま中継する。
func (s *Server) handleRefreshToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
			return
		}

		tokens, err := s.authenticator.Refresh(requestContext(c), req.RefreshToken)
		if err != nil {
			var refreshErr *auth.RefreshError
			if errors.As(err, &refreshErr) {
				status := refreshErr.Status
				if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
					status = http.StatusUnauthorized
				}
				message := refreshErr.Message
				if message == "" {
					message = "Token refresh failed"
				}
				body := gin.H{"error": message}
				if refreshErr.Code != "" {
					body["code"] = refreshErr.Code
				}
				c.JSON(status, body)
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "Token refresh failed",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, tokens)
	}
}

// handleSession は現在のセッションを必要ならリフレッシュしたうえで返すハンドラを返す。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.freshSession(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, session.Project(sess))
	}
}

// handleSignOut はセッションクッキーを削除するハンドラを返す。
// 有効なセッションが提示されていればサインアウトを記録する。
func (s *Server) handleSignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, err := s.loadSession(c); err == nil {
			s.record(c.Request.Context(), sess.ID, event.AggregateTypeSession, event.TypeSessionSignedOut, sess.User.ID,
				event.SessionSignedOutData{Username: sess.User.Username})
		}
		s.clearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
	}
}

// handleEvents は呼び出し元ユーザーのセッションイベントを返すハンドラを返す。
// 終端状態のセッションでも自分の履歴は参照できる。
func (s *Server) handleEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.journal == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session journal is disabled"})
			return
		}
		sess, err := s.loadSession(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		// ログイン失敗はuser_idが空で記録されるため、空のIDでは参照させない
		if sess.User.ID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Session has no user id"})
			return
		}

		limit := journal.DefaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		events, err := s.journal.ListByUser(c.Request.Context(), sess.User.ID, limit)
		if err != nil {
			s.logger.Error("セッションイベントの取得に失敗", zap.String("user_id", sess.User.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list session events"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}
