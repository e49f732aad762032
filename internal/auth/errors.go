package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/edgegate/internal/session"
)

// ErrAuthenticationFailed はアップストリームがログインを拒否したことを表す。
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrIncompleteLoginResponse はログイン応答にユーザーIDまたはトークンが欠けていることを表す。
var ErrIncompleteLoginResponse = errors.New("login response is missing user id or tokens")

// DefaultLoginFailedMessage はアップストリームがメッセージを返さなかった場合のメッセージ。
const DefaultLoginFailedMessage = "Login failed"

// CodeRefreshTokenExpired はリフレッシュトークンの失効を表す構造化エラーコード。
const CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"

// expiredMessages はエラーコードを返さないアップストリーム向けの判定文字列。
var expiredMessages = []string{"refresh token expired", "jwt expired"}

// AuthenticationError はログイン拒否の詳細。
type AuthenticationError struct {
	// Status はアップストリームが返したHTTPステータスコード。
	Status int
	// Message はアップストリームのメッセージ。
	Message string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", ErrAuthenticationFailed, e.Status, e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return ErrAuthenticationFailed
}

// RefreshError はリフレッシュ要求が非2xxで拒否されたことを表す。
type RefreshError struct {
	// Code はアップストリームが返した構造化エラーコード。
	Code string
	// Message はアップストリームのメッセージ。
	Message string
	// Status はアップストリームが返したHTTPステータスコード。
	Status int
}

func (e *RefreshError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("refresh rejected (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("refresh rejected (status %d): %s", e.Status, e.Message)
}

// Expired はリフレッシュトークン自体の失効による拒否かどうかを返す。
// 構造化エラーコードがあればそれだけで判定し、無い場合のみメッセージで判定する。
func (e *RefreshError) Expired() bool {
	if e.Code != "" {
		return e.Code == CodeRefreshTokenExpired
	}
	msg := strings.ToLower(e.Message)
	for _, m := range expiredMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Unwrap はセッションの終端状態に対応するセンチネルエラーを返す。
func (e *RefreshError) Unwrap() error {
	if e.Expired() {
		return session.ErrRefreshTokenExpired
	}
	return session.ErrRefreshTokenError
}
