// Package session はログインセッションとトークンペアのライフサイクルを管理する。
//
// セッションはサーバーのメモリに保持せず、Codecで署名したトークンとして
// クライアントとの間を往復する。Manager.EnsureFreshはセッションに触れるたびに
// 呼び出され、アクセストークンが失効していればリフレッシュを行う。
// リフレッシュに失敗したセッションは終端状態になり、再ログインするまで回復しない。
package session
