package proxy

import (
	"errors"
	"fmt"
)

// ErrResponseTooLarge はアップストリームの応答ボディが上限を超えたことを表す。
var ErrResponseTooLarge = errors.New("upstream response body too large")

// TransportError はアップストリームへの到達自体に失敗したことを表す。
// タイムアウト、名前解決失敗、接続拒否、キャンセルなどが該当する。
// アップストリームが非2xxを返した場合はこのエラーにはならない。
type TransportError struct {
	// Upstream はアップストリームの論理名。
	Upstream string
	// URL は転送先URL。
	URL string
	// Err は原因となったエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *TransportError) Error() string {
	return fmt.Sprintf("proxy transport failure: upstream=%s url=%s: %v", e.Upstream, e.URL, e.Err)
}

// Unwrap は原因となったエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cause はレスポンスのmessageフィールドに載せる原因の説明を返す。
func (e *TransportError) Cause() string {
	if e.Err == nil {
		return "unknown transport error"
	}
	return e.Err.Error()
}
