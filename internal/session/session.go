package session

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrSessionTerminated はセッションが終端状態であり再ログインが必要であることを表す。
	ErrSessionTerminated = errors.New("session terminated")
	// ErrRefreshTokenExpired はリフレッシュトークン自体が失効していることを表す。
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenError はリフレッシュトークンの失効以外の理由でリフレッシュに失敗したことを表す。
	ErrRefreshTokenError = errors.New("refresh token error")
)

// ErrorCode はセッションの終端状態を表すマーカー。空文字列は正常。
type ErrorCode string

const (
	// RefreshTokenExpired はリフレッシュトークンの失効による終端状態。
	RefreshTokenExpired ErrorCode = "RefreshTokenExpired"
	// RefreshTokenError はその他のリフレッシュ失敗による終端状態。
	RefreshTokenError ErrorCode = "RefreshTokenError"
)

// Err はエラーコードに対応するセンチネルエラーを返す。
func (c ErrorCode) Err() error {
	switch c {
	case "":
		return nil
	case RefreshTokenExpired:
		return ErrRefreshTokenExpired
	default:
		return ErrRefreshTokenError
	}
}

// Identity は認証済みユーザーの識別情報。セッション作成後は変更しない。
type Identity struct {
	// ID はユーザーID。アップストリームが数値を返した場合も文字列で保持する。
	ID string `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// TokenPair はアクセストークンとリフレッシュトークンの組。
// リフレッシュのたびに丸ごと置き換える。
type TokenPair struct {
	// AccessToken はexpクレームを持つ署名済みトークン。
	AccessToken string `json:"accessToken"`
	// RefreshToken はリフレッシュエンドポイントでのみ使用するトークン。
	RefreshToken string `json:"refreshToken"`
}

// Session は1人のユーザーのログインセッション。
type Session struct {
	// ID はセッションの一意識別子（UUID）。
	ID string `json:"id"`
	// User はユーザーの識別情報。
	User Identity `json:"user"`
	// Tokens は現在のトークンペア。
	Tokens TokenPair `json:"tokens"`
	// Error は終端状態のマーカー。空なら正常。
	Error ErrorCode `json:"error,omitempty"`
}

// New はログイン成功時に新しいセッションを生成する。
func New(user Identity, tokens TokenPair) Session {
	return Session{
		ID:     uuid.New().String(),
		User:   user,
		Tokens: tokens,
	}
}

// Terminated はセッションが終端状態かどうかを返す。
func (s Session) Terminated() bool {
	return s.Error != ""
}

// View はクライアントに公開するセッションの投影。
type View struct {
	User         Identity  `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Error        ErrorCode `json:"error,omitempty"`
}

// Project はセッションをクライアント向けの形に変換する。副作用はない。
func Project(s Session) View {
	return View{
		User:         s.User,
		AccessToken:  s.Tokens.AccessToken,
		RefreshToken: s.Tokens.RefreshToken,
		Error:        s.Error,
	}
}
