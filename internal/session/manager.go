package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nao1215/edgegate/pkg/event"
)

// State はトークンライフサイクル上のセッションの状態。
type State string

const (
	// StateFresh はアクセストークンが有効な状態。
	StateFresh State = "Fresh"
	// StateNeedsRefresh はアクセストークンが失効しておりリフレッシュが必要な状態。
	StateNeedsRefresh State = "NeedsRefresh"
	// StateRefreshing はリフレッシュ要求の応答待ちの状態。EnsureFreshの内部でのみ現れる。
	StateRefreshing State = "Refreshing"
	// StateFailedExpired はリフレッシュトークンの失効による終端状態。
	StateFailedExpired State = "Failed(RefreshTokenExpired)"
	// StateFailedError はその他のリフレッシュ失敗による終端状態。
	StateFailedError State = "Failed(RefreshTokenError)"
)

const (
	// RefreshOutcomeSuccess はリフレッシュに成功したことを表す。
	RefreshOutcomeSuccess = "success"
	// RefreshOutcomeExpired はリフレッシュトークンが失効していたことを表す。
	RefreshOutcomeExpired = "expired"
	// RefreshOutcomeError はその他の理由でリフレッシュに失敗したことを表す。
	RefreshOutcomeError = "error"
)

// Refresher はリフレッシュトークンを新しいトークンペアと交換する。
// リフレッシュトークン自体が失効している場合は ErrRefreshTokenExpired を
// errors.Is で判定できるエラーを返すこと。
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// Recorder はセッションイベントをジャーナルへ記録する。
type Recorder interface {
	Record(ctx context.Context, ev *event.Event) error
}

// TerminalLookup は過去にリフレッシュに失敗したトークンを調べる。
// 署名済みトークンは失効させられないため、終端前のトークンの再提示をこれで拒否する。
type TerminalLookup interface {
	// TerminalCode はセッションとリフレッシュトークンのダイジェストに対応する終端コードを返す。
	// 記録が無ければ空文字列を返す。
	TerminalCode(ctx context.Context, sessionID, refreshDigest string) (string, error)
}

// Observer はリフレッシュの結果を記録する。メトリクス収集に使う。
type Observer interface {
	ObserveRefresh(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, *event.Event) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveRefresh(string) {}

// Option はManagerの設定を変更する。
type Option func(*Manager)

// WithClock は現在時刻の取得方法を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLeeway は有効期限までの残り時間がleeway以下のトークンも失効扱いにする。
func WithLeeway(leeway time.Duration) Option {
	return func(m *Manager) {
		if leeway > 0 {
			m.leeway = leeway
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder はジャーナルの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithObserver はメトリクスの記録先を設定する。
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithTerminalLookup は終端済みセッションの照会先を設定する。
func WithTerminalLookup(l TerminalLookup) Option {
	return func(m *Manager) {
		if l != nil {
			m.terminals = l
		}
	}
}

// Manager はセッションのトークン鮮度を保証する。
// 状態を持たないため、複数のgoroutineから同時に呼び出してよい。
// 同一ユーザーの並行リフレッシュは排他しない。後着側はローテーション済みの
// リフレッシュトークンを提示することになり、RefreshTokenExpiredとして再ログインを求められる。
type Manager struct {
	refresher Refresher
	now       func() time.Time
	leeway    time.Duration
	logger    *zap.Logger
	recorder  Recorder
	observer  Observer
	terminals TerminalLookup
}

// NewManager は新しいManagerを生成する。
func NewManager(refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		refresher: refresher,
		now:       time.Now,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AccessExpiry はアクセストークンのexpクレームを署名検証なしで取り出す。
// 取り出せない場合はfalseを返す。
func AccessExpiry(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// State はセッションの現在の状態を返す。ネットワークアクセスは行わない。
func (m *Manager) State(s Session) State {
	switch s.Error {
	case RefreshTokenExpired:
		return StateFailedExpired
	case RefreshTokenError:
		return StateFailedError
	}
	if m.expired(s.Tokens.AccessToken) {
		return StateNeedsRefresh
	}
	return StateFresh
}

// expired はアクセストークンが失効しているかどうかを判定する。
// expを取り出せないトークンは失効扱いにする。
func (m *Manager) expired(accessToken string) bool {
	exp, ok := AccessExpiry(accessToken)
	if !ok {
		return true
	}
	return !m.now().Add(m.leeway).Before(exp)
}

// EnsureFresh はセッションのアクセストークンが有効であることを保証する。
//
// 有効なら何もせずにそのまま返す。失効していればリフレッシュを1回だけ試み、
// 成功すればトークンペアを丸ごと置き換えたセッションを返す。失敗した場合は
// Errorを設定したセッションと ErrSessionTerminated を返す。すでに終端状態の
// セッションや、照会先に終端が記録されているセッションに対しては
// ネットワークアクセスを行わずに ErrSessionTerminated を返す。
// ctxがキャンセルされた場合はセッションを変更せずにctxのエラーを返す。
func (m *Manager) EnsureFresh(ctx context.Context, s Session) (Session, error) {
	if s.Terminated() {
		return s, fmt.Errorf("%w: %w", ErrSessionTerminated, s.Error.Err())
	}
	if !m.expired(s.Tokens.AccessToken) {
		return s, nil
	}
	if code := m.terminalCode(ctx, s); code != "" {
		s.Error = code
		m.logger.Info("終端済みのセッションが再提示された",
			zap.String("session_id", s.ID),
			zap.String("code", string(code)),
		)
		return s, fmt.Errorf("%w: %w", ErrSessionTerminated, code.Err())
	}

	tokens, err := m.refresher.Refresh(ctx, s.Tokens.RefreshToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s, ctxErr
		}
		return m.fail(ctx, s, err)
	}

	s.Tokens = tokens
	m.observer.ObserveRefresh(RefreshOutcomeSuccess)
	m.logger.Info("トークンをリフレッシュ",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.User.ID),
	)

	data := event.SessionRefreshedData{}
	if exp, ok := AccessExpiry(tokens.AccessToken); ok {
		data.AccessExpiresAt = exp.UTC()
	}
	m.record(ctx, s, event.TypeSessionRefreshed, data)
	return s, nil
}

// terminalCode は照会先に記録された終端コードを返す。照会の失敗はログに残して無視する。
func (m *Manager) terminalCode(ctx context.Context, s Session) ErrorCode {
	if m.terminals == nil {
		return ""
	}
	code, err := m.terminals.TerminalCode(ctx, s.ID, RefreshDigest(s.Tokens.RefreshToken))
	if err != nil {
		m.logger.Warn("終端済みセッションの照会に失敗",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
		return ""
	}
	switch ErrorCode(code) {
	case "":
		return ""
	case RefreshTokenExpired:
		return RefreshTokenExpired
	default:
		return RefreshTokenError
	}
}

// RefreshDigest はリフレッシュトークンを記録用のダイジェストに変換する。
func RefreshDigest(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:16])
}

// fail はリフレッシュ失敗を分類し、セッションを終端状態にする。
func (m *Manager) fail(ctx context.Context, s Session, cause error) (Session, error) {
	s.Error = RefreshTokenError
	outcome := RefreshOutcomeError
	if errors.Is(cause, ErrRefreshTokenExpired) {
		s.Error = RefreshTokenExpired
		outcome = RefreshOutcomeExpired
	}

	m.observer.ObserveRefresh(outcome)
	m.logger.Warn("トークンのリフレッシュに失敗",
		zap.String("session_id", s.ID),
		zap.String("user_id", s.User.ID),
		zap.String("code", string(s.Error)),
		zap.Error(cause),
	)
	m.record(ctx, s, event.TypeSessionRefreshFailed, event.SessionRefreshFailedData{
		Code:          string(s.Error),
		Reason:        cause.Error(),
		RefreshDigest: RefreshDigest(s.Tokens.RefreshToken),
	})
	return s, fmt.Errorf("%w: %w", ErrSessionTerminated, s.Error.Err())
}

// record はジャーナルへ記録する。記録の失敗はログに残すだけで呼び出し元には返さない。
func (m *Manager) record(ctx context.Context, s Session, typ event.Type, data any) {
	ev, err := event.New(s.ID, event.AggregateTypeSession, typ, s.User.ID, data)
	if err == nil {
		err = m.recorder.Record(context.WithoutCancel(ctx), ev)
	}
	if err != nil {
		m.logger.Warn("セッションイベントの記録に失敗",
			zap.String("event_type", string(typ)),
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	}
}
