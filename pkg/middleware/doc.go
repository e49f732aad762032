// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// CORSとプリフライト応答、パニックリカバリ、リクエストログ、
// クライアントIPごとのレート制限、セッショントークンの取り出しを含む。
package middleware
