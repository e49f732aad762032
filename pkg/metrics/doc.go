// Package metrics はゲートウェイのPrometheusメトリクスを提供する。
//
// Collectorは転送、トークンリフレッシュ、ログインの結果を数え、
// Handlerで /metrics として公開する。レジストリは呼び出し側から注入する。
package metrics
