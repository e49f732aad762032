package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// ErrUnknownUpstream は論理名に対応するベースURLが設定されていないことを表す。
var ErrUnknownUpstream = errors.New("unknown upstream")

// Kind はアップストリームの種類を表すタグ。値はそのまま論理名として使う。
type Kind string

const (
	// KindLottery は抽選結果バックエンド。
	KindLottery Kind = "lottery"
	// KindForum はフォーラムバックエンド。
	KindForum Kind = "forum"
	// KindRapidAPI はRapidAPI経由の外部API。
	KindRapidAPI Kind = "rapidapi"
	// KindScraperA は公開スクレイパーA。
	KindScraperA Kind = "scraper-a"
	// KindScraperB は公開スクレイパーB。
	KindScraperB Kind = "scraper-b"
)

// Kinds は既知のアップストリーム種別の一覧を返す。
func Kinds() []Kind {
	return []Kind{KindLottery, KindForum, KindRapidAPI, KindScraperA, KindScraperB}
}

// AuthMode は転送時にセッションを参照するかどうかを表す。
type AuthMode string

const (
	// AuthNone はセッションを参照しない。受信したAuthorizationヘッダーをそのまま転送する。
	AuthNone AuthMode = "none"
	// AuthOptional はセッショントークンが提示された場合のみ鮮度を確認し、
	// アクセストークンをAuthorizationヘッダーとして付与する。
	AuthOptional AuthMode = "optional"
	// AuthRequired はセッションを必須とする。提示されない場合は401を返す。
	AuthRequired AuthMode = "required"
)

const (
	// HeaderAuthorization は転送を許可する認証ヘッダー。
	HeaderAuthorization = "Authorization"
	// HeaderClientID はクライアント識別用のカスタムヘッダー。
	HeaderClientID = "X-Client-Id"
	// HeaderContentType は転送を許可するContent-Typeヘッダー。
	HeaderContentType = "Content-Type"
	// HeaderRapidAPIKey はRapidAPIのAPIキーヘッダー。
	HeaderRapidAPIKey = "X-RapidAPI-Key"
	// HeaderRapidAPIHost はRapidAPIのホストヘッダー。
	HeaderRapidAPIHost = "X-RapidAPI-Host"
)

// Target は1つのアップストリームの転送設定。
// 起動時に生成された後は変更しない。
type Target struct {
	// Kind はアップストリームの種類。論理名を兼ねる。
	Kind Kind
	// BaseURL はアップストリームのベースURL（末尾スラッシュなし）。
	BaseURL string
	// PathPrefix はベースURLの直後に付与する固定パス。
	PathPrefix string
	// ForwardHeaders は受信リクエストから転送してよいヘッダーの許可リスト。
	ForwardHeaders []string
	// ExtraHeaders は送信リクエストに常に付与する固定ヘッダー。
	ExtraHeaders map[string]string
	// CORSHeaders はAccess-Control-Allow-Headersに追加するベンダーヘッダー。
	CORSHeaders []string
	// Auth はセッション参照のモード。
	Auth AuthMode
}

// Name はアップストリームの論理名を返す。
func (t Target) Name() string {
	return string(t.Kind)
}

// Registry は論理名からTargetを解決する読み取り専用のレジストリ。
type Registry struct {
	targets map[string]Target
}

// NewRegistry は指定されたTargetからレジストリを生成する。
// 同じ種類が複数渡された場合は後勝ちとなる。
func NewRegistry(targets ...Target) *Registry {
	m := make(map[string]Target, len(targets))
	for _, t := range targets {
		m[t.Name()] = t
	}
	return &Registry{targets: m}
}

// Resolve は論理名に対応するTargetを返す。
// 未登録、またはベースURLが空の場合はErrUnknownUpstreamを返す。
func (r *Registry) Resolve(name string) (Target, error) {
	t, ok := r.targets[name]
	if !ok || t.BaseURL == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownUpstream, name)
	}
	return t, nil
}

// Names は登録済みの論理名をソートして返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate は全TargetのベースURLがhttp(s)の絶対URLであることを検証する。
// 起動時に呼び出し、失敗した場合はプロセスを起動しない。
func (r *Registry) Validate() error {
	var errs []error
	for _, name := range r.Names() {
		t := r.targets[name]
		if t.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: %q のベースURLが未設定です", ErrUnknownUpstream, name))
			continue
		}
		u, err := url.Parse(t.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("%q のベースURLが不正です: %w", name, err))
			continue
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%q のベースURLはhttp(s)の絶対URLである必要があります: %s", name, t.BaseURL))
		}
		switch t.Auth {
		case AuthNone, AuthOptional, AuthRequired:
		default:
			errs = append(errs, fmt.Errorf("%q の認証モードが不正です: %q", name, t.Auth))
		}
	}
	return errors.Join(errs...)
}
