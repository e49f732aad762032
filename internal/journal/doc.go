// Package journal はセッションイベントを追記専用のSQLiteテーブルに記録する。
//
// ログイン、リフレッシュ、サインアウトなどのイベントを保存し、
// ユーザーごとに新しい順で参照できる。パスワードやトークンは保存しない。
package journal
