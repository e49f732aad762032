// Package gateway はエッジゲートウェイのHTTPサーバーを提供する。
//
// ブラウザからのリクエストを論理名で指定されたアップストリームへ転送し、
// ログイン・トークンリフレッシュ・サインアウトといったセッションの
// ライフサイクルを扱う。セッションはサーバーのメモリには保持せず、
// 署名済みのセッショントークン（クッキーまたはヘッダー）から毎回復元する。
package gateway
