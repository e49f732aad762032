package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeSession はセッションエンティティを表す。
	AggregateTypeSession AggregateType = "Session"
	// AggregateTypeUser はユーザーエンティティを表す。ログイン失敗など、セッションが存在しない場合に使う。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeSessionCreated はログインに成功しセッションが作成されたことを表す。
	TypeSessionCreated Type = "SessionCreated"
	// TypeSessionRefreshed はトークンペアが更新されたことを表す。
	TypeSessionRefreshed Type = "SessionRefreshed"
	// TypeSessionRefreshFailed はトークン更新に失敗しセッションが終端状態になったことを表す。
	TypeSessionRefreshFailed Type = "SessionRefreshFailed"
	// TypeSessionSignedOut はサインアウトされたことを表す。
	TypeSessionSignedOut Type = "SessionSignedOut"
	// TypeLoginFailed はログインに失敗したことを表す。
	TypeLoginFailed Type = "LoginFailed"
)

// Types は既知のイベント種別の一覧を返す。
func Types() []Type {
	return []Type{
		TypeSessionCreated,
		TypeSessionRefreshed,
		TypeSessionRefreshFailed,
		TypeSessionSignedOut,
		TypeLoginFailed,
	}
}

// Event はセッションジャーナルに追記される不変のイベントレコードを表す。
// パスワードやトークンは決して含めない。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。セッションIDまたはユーザー名。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// UserID はイベントに関係するユーザーのID。不明な場合は空。
	UserID string `json:"user_id"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// SessionCreatedData はSessionCreatedイベントのデータ。
type SessionCreatedData struct {
	// Username はログインしたユーザー名。
	Username string `json:"username"`
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// SessionRefreshedData はSessionRefreshedイベントのデータ。
type SessionRefreshedData struct {
	// AccessExpiresAt は新しいアクセストークンの有効期限。不明な場合はゼロ値。
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// SessionRefreshFailedData はSessionRefreshFailedイベントのデータ。
type SessionRefreshFailedData struct {
	// Code は終端状態を表すエラーコード。
	Code string `json:"code"`
	// Reason は失敗の理由。
	Reason string `json:"reason"`
	// RefreshDigest は失敗したリフレッシュトークンのダイジェスト。
	RefreshDigest string `json:"refresh_digest,omitempty"`
}

// SessionSignedOutData はSessionSignedOutイベントのデータ。
type SessionSignedOutData struct {
	// Username はサインアウトしたユーザー名。
	Username string `json:"username"`
}

// LoginFailedData はLoginFailedイベントのデータ。
type LoginFailedData struct {
	// Username はログインを試みたユーザー名。
	Username string `json:"username"`
	// Reason は失敗の理由。アップストリームのメッセージをそのまま使う。
	Reason string `json:"reason"`
}
