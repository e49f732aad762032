package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/edgegate/internal/upstream"
)

const (
	// OutcomeSuccess はアップストリームが2xxを返したことを表す。
	OutcomeSuccess = "success"
	// OutcomeUpstreamError はアップストリームが非2xxを返したことを表す。
	OutcomeUpstreamError = "upstream_error"
	// OutcomeTransportError はアップストリームへ到達できなかったことを表す。
	OutcomeTransportError = "transport_error"
)

// DefaultMaxBodyBytes はボディサイズ上限の既定値（10MiB）。
const DefaultMaxBodyBytes int64 = 10 << 20

// Observer は転送結果を記録する。メトリクス収集に使う。
type Observer interface {
	// ObserveForward は1回の転送の結果と所要時間を記録する。
	ObserveForward(upstream, outcome string, duration time.Duration)
}

// nopObserver は何も記録しないObserver。
type nopObserver struct{}

func (nopObserver) ObserveForward(string, string, time.Duration) {}

// Forwarder はアップストリームへの転送を行うステートレスなハンドラ。
// 複数のgoroutineから同時に呼び出してよい。
type Forwarder struct {
	// client は起動時に生成して注入されるHTTPクライアント。
	client *http.Client
	// logger は構造化ロガー。
	logger *zap.Logger
	// observer は転送結果の記録先。
	observer Observer
	// maxBodyBytes はアップストリーム応答ボディの上限。
	maxBodyBytes int64
}

// NewForwarder は新しいForwarderを生成する。
// clientにはタイムアウトを明示的に設定したものを渡すこと。
func NewForwarder(client *http.Client, logger *zap.Logger, observer Observer, maxBodyBytes int64) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Forwarder{
		client:       client,
		logger:       logger,
		observer:     observer,
		maxBodyBytes: maxBodyBytes,
	}
}

// NewRequest は転送用の*http.Requestを組み立てる。
// ctxには受信リクエストのコンテキストを渡し、クライアント切断時に送信もキャンセルされるようにする。
func NewRequest(ctx context.Context, target upstream.Target, req Request) (*http.Request, error) {
	return newRequest(ctx, BuildTargetURL(target, req.Segments, req.RawQuery), target, req)
}

// newRequest は組み立て済みの転送先URLに対する*http.Requestを作成する。
func newRequest(ctx context.Context, targetURL string, target upstream.Target, req Request) (*http.Request, error) {
	body, contentType := prepareBody(req.Header, req.Body)

	out, err := http.NewRequestWithContext(ctx, req.Method, targetURL, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}
	out.Header = buildHeader(target, req.Header)
	out.Header.Set(upstream.HeaderContentType, contentType)
	return out, nil
}

// Forward はリクエストをアップストリームへ1回だけ送信し、応答を分類して返す。
// アップストリームが非2xxを返した場合もエラーにはせず、Responseとして返す。
// 到達自体に失敗した場合は*TransportErrorを返す。
func (f *Forwarder) Forward(ctx context.Context, target upstream.Target, req Request) (*Response, error) {
	start := time.Now()
	targetURL := BuildTargetURL(target, req.Segments, req.RawQuery)

	out, err := newRequest(ctx, targetURL, target, req)
	if err != nil {
		f.observer.ObserveForward(target.Name(), OutcomeTransportError, time.Since(start))
		return nil, &TransportError{Upstream: target.Name(), URL: targetURL, Err: err}
	}

	resp, err := f.client.Do(out)
	if err != nil {
		f.observer.ObserveForward(target.Name(), OutcomeTransportError, time.Since(start))
		f.logger.Warn("アップストリームへの転送に失敗",
			zap.String("upstream", target.Name()),
			zap.String("method", req.Method),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return nil, &TransportError{Upstream: target.Name(), URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err == nil && int64(len(body)) > f.maxBodyBytes {
		err = ErrResponseTooLarge
	}
	if err != nil {
		f.observer.ObserveForward(target.Name(), OutcomeTransportError, time.Since(start))
		f.logger.Warn("アップストリーム応答の読み取りに失敗",
			zap.String("upstream", target.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
		return nil, &TransportError{Upstream: target.Name(), URL: targetURL, Err: err}
	}

	result := classify(resp.StatusCode, resp.Header.Get(upstream.HeaderContentType), body, targetURL)
	outcome := OutcomeSuccess
	if !result.IsSuccess() {
		outcome = OutcomeUpstreamError
		f.logger.Info("アップストリームがエラーを返却",
			zap.String("upstream", target.Name()),
			zap.String("url", targetURL),
			zap.Int("status", resp.StatusCode),
		)
	}
	f.observer.ObserveForward(target.Name(), outcome, time.Since(start))
	return result, nil
}
