// Package proxy はアップストリームへの転送処理（フォワーダー）を提供する。
//
// ワイルドカードパスから転送先URLを再構築し、クエリパラメータの結合、
// ヘッダーの許可リスト方式での転送、ボディのシリアライズを行う。
// アップストリームの応答はJSONとして解釈できるかどうかで分類し、
// 失敗時も呼び出し元が読める一定の形に正規化する。
// 自動リトライは行わない。1回の受信リクエストにつき1回だけ送信する。
package proxy
