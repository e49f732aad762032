// Package auth はアップストリームの認証エンドポイントとの通信を担う。
//
// Authenticateはユーザー名とパスワードを検証してトークンペアを取得し、
// Refreshはリフレッシュトークンを新しいトークンペアと交換する。
// 資格情報はログにもジャーナルにも残さない。
package auth
