package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/edgegate/internal/upstream"
)

// WildcardKey はワイルドカードパス自身を表すクエリキー。
// 受信クエリからは除外して転送する。
const WildcardKey = "path"

// jsonContentType は送信時の既定のContent-Type。
const jsonContentType = "application/json"

// hopByHopHeaders は転送してはならないホップバイホップヘッダー。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Host":                {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Request は受信リクエストから導出した転送用のリクエスト。
// 1回の転送処理の間だけ使用する。
type Request struct {
	// Method はHTTPメソッド。受信したものをそのまま使う。
	Method string
	// Segments はワイルドカードパスのセグメント列。
	Segments []string
	// RawQuery は受信リクエストの生のクエリ文字列。
	RawQuery string
	// Header は受信リクエストのヘッダー。許可リストに含まれるものだけ転送する。
	Header http.Header
	// Body は受信リクエストのボディ。
	Body []byte
}

// SplitPath はワイルドカードパス（例: "/draws/latest"）をセグメント列に分割する。
func SplitPath(wildcard string) []string {
	trimmed := strings.TrimPrefix(wildcard, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// BuildTargetURL は転送先URLを {BaseURL}{PathPrefix}{subPath}?{query} の形で組み立てる。
// 結合したサブパスにリテラルの "?" が含まれる場合は最初の出現位置で分割し、
// 右側を追加のクエリとして受信クエリより先に結合する。
func BuildTargetURL(target upstream.Target, segments []string, rawQuery string) string {
	sub := strings.Join(segments, "/")
	var embedded string
	if i := strings.IndexByte(sub, '?'); i >= 0 {
		sub, embedded = sub[:i], sub[i+1:]
	}

	u := target.BaseURL + target.PathPrefix + escapePath(sub)
	if q := MergeQuery(embedded, rawQuery); q != "" {
		u += "?" + q
	}
	return u
}

// escapePath はサブパスをセグメントごとにエスケープする。区切りの "/" は維持する。
func escapePath(sub string) string {
	if sub == "" {
		return ""
	}
	parts := strings.Split(sub, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// queryPair はデコード済みのクエリパラメータ1組。
type queryPair struct {
	key      string
	value    string
	hasValue bool
}

// MergeQuery は埋め込みクエリと受信クエリを結合したクエリ文字列を返す。
// 埋め込み側が先、受信側が後になる。同じキーが重複しても両方残す。
// 各キーと値は個別にデコードしてから再エンコードする。
func MergeQuery(embedded, inbound string) string {
	pairs := parseQuery(embedded, "")
	pairs = append(pairs, parseQuery(inbound, WildcardKey)...)

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		if p.hasValue {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(p.value))
		}
	}
	return b.String()
}

// parseQuery は生のクエリ文字列を出現順のまま分解する。
// url.ParseQuery はキーの出現順を保持しないため使わない。
func parseQuery(raw, skipKey string) []queryPair {
	if raw == "" {
		return nil
	}
	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, hasValue := strings.Cut(part, "=")
		key := unescape(k)
		if key == "" || (skipKey != "" && key == skipKey) {
			continue
		}
		pairs = append(pairs, queryPair{key: key, value: unescape(v), hasValue: hasValue})
	}
	return pairs
}

// unescape はクエリ要素をデコードする。不正なエスケープは元の文字列のまま扱う。
func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// buildHeader は許可リストに含まれるヘッダーだけを複製し、固定ヘッダーを付与する。
// Content-Typeはボディの種類に応じて後から決定する。
func buildHeader(target upstream.Target, in http.Header) http.Header {
	out := make(http.Header)
	for _, name := range target.ForwardHeaders {
		key := http.CanonicalHeaderKey(name)
		if _, hop := hopByHopHeaders[key]; hop || key == upstream.HeaderContentType {
			continue
		}
		for _, v := range in.Values(key) {
			out.Add(key, v)
		}
	}
	for k, v := range target.ExtraHeaders {
		out.Set(k, v)
	}
	return out
}

// prepareBody は送信ボディとContent-Typeを決定する。
//   - multipart/form-data などの生フォームはそのまま転送し、受信したContent-Typeを使う
//   - 1つ以上のキーを持つJSONオブジェクトはJSONとして送る
//   - それ以外はボディを送らない
func prepareBody(in http.Header, body []byte) (io.Reader, string) {
	contentType := in.Get(upstream.HeaderContentType)
	if len(body) == 0 {
		return nil, jsonContentType
	}

	if isRawForm(contentType) {
		return bytes.NewReader(body), contentType
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || len(obj) == 0 {
		return nil, jsonContentType
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, body); err != nil {
		return nil, jsonContentType
	}
	return &compacted, jsonContentType
}

// isRawForm はContent-Typeが加工せずに転送すべきフォーム形式かどうかを判定する。
func isRawForm(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "multipart/form-data" || mediaType == "application/x-www-form-urlencoded"
}
