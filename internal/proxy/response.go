package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	// jsonResponseType はJSON応答として再送出する際のContent-Type。
	jsonResponseType = "application/json; charset=utf-8"
	// textResponseType はアップストリームがContent-Typeを返さなかった場合の既定値。
	textResponseType = "text/plain; charset=utf-8"
)

// Response はアップストリームの応答を正規化したもの。
type Response struct {
	// Status はアップストリームのステータスコード。
	Status int
	// ContentType は呼び出し元へ返すContent-Type。
	ContentType string
	// Payload は呼び出し元へ返すボディ。
	Payload []byte
}

// IsSuccess はアップストリームが2xxを返したかどうかを返す。
func (r *Response) IsSuccess() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// errorEnvelope はJSONとして解釈できない非2xx応答を包む形。
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	URL     string `json:"url"`
}

// classify はアップストリームの応答を分類して呼び出し元へ返す形に変換する。
//   - 非2xxでJSON: ボディをそのまま返す
//   - 非2xxで非JSON: errorEnvelopeを合成する
//   - 2xxでJSON: ボディをそのまま返す
//   - 2xxで非JSON: 生テキストをアップストリームのContent-Typeのまま返す
func classify(status int, contentType string, body []byte, targetURL string) *Response {
	isJSON := len(body) > 0 && json.Valid(body)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		if isJSON {
			return &Response{Status: status, ContentType: jsonResponseType, Payload: body}
		}
		message := string(body)
		if message == "" {
			message = "Unknown error"
		}
		payload, err := json.Marshal(errorEnvelope{
			Error:   fmt.Sprintf("Backend returned %d", status),
			Message: message,
			Status:  status,
			URL:     targetURL,
		})
		if err != nil {
			// 文字列と数値のみの構造体なので到達しない
			payload = []byte(`{"error":"Backend returned error"}`)
		}
		return &Response{Status: status, ContentType: jsonResponseType, Payload: payload}
	}

	if isJSON {
		return &Response{Status: status, ContentType: jsonResponseType, Payload: body}
	}
	if contentType == "" {
		contentType = textResponseType
	}
	return &Response{Status: status, ContentType: contentType, Payload: body}
}
