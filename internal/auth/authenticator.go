package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nao1215/edgegate/internal/session"
	"github.com/nao1215/edgegate/pkg/httpclient"
)

// loginPath はアップストリームのログインエンドポイント。
const loginPath = "/auth/login"

const (
	// LoginOutcomeSuccess はログインに成功したことを表す。
	LoginOutcomeSuccess = "success"
	// LoginOutcomeAnonymous はアップストリームが空の応答を返したことを表す。
	LoginOutcomeAnonymous = "anonymous"
	// LoginOutcomeRejected はアップストリームがログインを拒否したことを表す。
	LoginOutcomeRejected = "rejected"
	// LoginOutcomeError はアップストリームへ到達できなかったことを表す。
	LoginOutcomeError = "error"
)

// Credentials はログインに使う資格情報。永続化もログ出力もしない。
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Observer はログインの結果を記録する。メトリクス収集に使う。
type Observer interface {
	ObserveLogin(outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveLogin(string) {}

// Config はアップストリームの認証エンドポイントの設定。
type Config struct {
	// BaseURL はログインエンドポイントのベースURL。
	BaseURL string
	// RefreshURL はリフレッシュエンドポイントの完全なURL。
	RefreshURL string
}

// Authenticator はアップストリームの認証エンドポイントを呼び出す。
type Authenticator struct {
	login    *httpclient.Client
	refresh  *httpclient.Client
	logger   *zap.Logger
	observer Observer
}

// New は新しいAuthenticatorを生成する。
// httpClientは転送用と同じく起動時に生成したものを渡す。
func New(cfg Config, httpClient *http.Client, logger *zap.Logger, observer Observer) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	refreshURL := cfg.RefreshURL
	if refreshURL == "" {
		refreshURL = strings.TrimRight(cfg.BaseURL, "/") + "/auth/refresh-token"
	}
	return &Authenticator{
		login:    httpclient.New(strings.TrimRight(cfg.BaseURL, "/"), httpClient),
		refresh:  httpclient.New(refreshURL, httpClient),
		logger:   logger,
		observer: observer,
	}
}

// userPayload はアップストリームが返すユーザー情報。
type userPayload struct {
	ID       json.RawMessage `json:"id"`
	Username string          `json:"username"`
	Role     string          `json:"role"`
}

// loginPayload はログイン応答。ユーザー情報はuserの下にある場合と最上位にある場合がある。
type loginPayload struct {
	userPayload
	User         *userPayload `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Authenticate は資格情報を検証し、ユーザー情報とトークンペアを返す。
// アップストリームが非2xxを返した場合は *AuthenticationError を返す。
// アップストリームが null・false・空の応答を返した場合は匿名として (nil, nil, nil) を返す。
// 2xxでもユーザーIDかトークンが欠けている場合は ErrIncompleteLoginResponse を返す。
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*session.Identity, *session.TokenPair, error) {
	var raw json.RawMessage
	err := a.login.PostJSON(ctx, loginPath, creds, &raw)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			a.observer.ObserveLogin(LoginOutcomeRejected)
			msg := upstreamMessage(se.Body, DefaultLoginFailedMessage)
			a.logger.Info("ログインが拒否された",
				zap.String("username", creds.Username),
				zap.Int("status", se.StatusCode),
			)
			return nil, nil, &AuthenticationError{Status: se.StatusCode, Message: msg}
		}
		a.observer.ObserveLogin(LoginOutcomeError)
		return nil, nil, fmt.Errorf("ログインリクエストに失敗: %w", err)
	}

	if falsy(raw) {
		a.observer.ObserveLogin(LoginOutcomeAnonymous)
		return nil, nil, nil
	}

	var p loginPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		a.observer.ObserveLogin(LoginOutcomeError)
		return nil, nil, fmt.Errorf("ログイン応答のデシリアライズに失敗: %w", err)
	}
	user := p.userPayload
	if p.User != nil {
		user = *p.User
	}

	identity := &session.Identity{
		ID:       flexibleID(user.ID),
		Username: user.Username,
		Role:     user.Role,
	}
	tokens := &session.TokenPair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	}
	if identity.ID == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		a.observer.ObserveLogin(LoginOutcomeError)
		a.logger.Warn("ログイン応答にユーザーIDまたはトークンが含まれていない",
			zap.String("username", creds.Username),
			zap.Bool("has_id", identity.ID != ""),
			zap.Bool("has_access_token", tokens.AccessToken != ""),
			zap.Bool("has_refresh_token", tokens.RefreshToken != ""),
		)
		return nil, nil, ErrIncompleteLoginResponse
	}
	a.observer.ObserveLogin(LoginOutcomeSuccess)
	return identity, tokens, nil
}

// refreshRequest はリフレッシュ要求のボディ。
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh はリフレッシュトークンを新しいトークンペアと交換する。
// アップストリームが非2xxを返した場合は *RefreshError を返す。
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error) {
	var tokens session.TokenPair
	err := a.refresh.PostJSON(ctx, "", refreshRequest{RefreshToken: refreshToken}, &tokens)
	if err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) {
			code, msg := errorFields(se.Body)
			return session.TokenPair{}, &RefreshError{Code: code, Message: msg, Status: se.StatusCode}
		}
		return session.TokenPair{}, fmt.Errorf("リフレッシュリクエストに失敗: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return session.TokenPair{}, errors.New("リフレッシュ応答にトークンが含まれていない")
	}
	return tokens, nil
}

// falsy はJSON値が null・false・空かどうかを判定する。
func falsy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}

// flexibleID は数値または文字列のIDを文字列に変換する。
func flexibleID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

// errorBody はアップストリームのエラー応答。
type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorFields はエラー応答から構造化コードとメッセージを取り出す。
// JSONでない場合はボディ全体をメッセージとして扱う。
func errorFields(body []byte) (code, message string) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", strings.TrimSpace(string(body))
	}
	message = eb.Message
	if message == "" {
		message = eb.Error
	}
	return eb.Code, message
}

// upstreamMessage はエラー応答のメッセージを返す。無ければfallbackを返す。
func upstreamMessage(body []byte, fallback string) string {
	_, msg := errorFields(body)
	if msg == "" {
		return fallback
	}
	return msg
}
