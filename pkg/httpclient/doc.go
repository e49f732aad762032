// Package httpclient はアップストリームの認証APIを呼び出すためのJSONクライアントを提供する。
//
// ログインやトークン更新など、応答をJSONとして構造化して扱う呼び出しに使う。
// 透過的な転送はinternal/proxyが担当し、このパッケージは使わない。
// 非2xx応答はステータスとボディを保持した*StatusErrorとして返す。
package httpclient
