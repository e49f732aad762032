package upstream

import "strings"

// Settings は環境変数から読み込んだアップストリームの接続設定。
type Settings struct {
	// LotteryURL は抽選結果バックエンドのベースURL。
	LotteryURL string
	// ForumURL はフォーラムバックエンドのベースURL。
	ForumURL string
	// RapidAPIURL はRapidAPIのベースURL。
	RapidAPIURL string
	// RapidAPIKey はRapidAPIのAPIキー。空の場合はヘッダーを付与しない。
	RapidAPIKey string
	// RapidAPIHost はRapidAPIのホスト名。
	RapidAPIHost string
	// ScraperAURL は公開スクレイパーAのベースURL。
	ScraperAURL string
	// ScraperBURL は公開スクレイパーBのベースURL。
	ScraperBURL string
}

// defaultForwardHeaders は全アップストリーム共通のヘッダー許可リスト。
func defaultForwardHeaders() []string {
	return []string{HeaderAuthorization, HeaderClientID, HeaderContentType}
}

// Defaults は各アップストリームの既定の転送設定を返す。
// バックエンドごとのヘッダーやパスの癖はここで設定として表現する。
func Defaults(s Settings) []Target {
	rapidHeaders := map[string]string{}
	if s.RapidAPIHost != "" {
		rapidHeaders[HeaderRapidAPIHost] = s.RapidAPIHost
	}
	if s.RapidAPIKey != "" {
		rapidHeaders[HeaderRapidAPIKey] = s.RapidAPIKey
	}

	return []Target{
		{
			Kind:           KindLottery,
			BaseURL:        trimBase(s.LotteryURL),
			PathPrefix:     "/api/",
			ForwardHeaders: defaultForwardHeaders(),
			Auth:           AuthOptional,
		},
		{
			Kind:           KindForum,
			BaseURL:        trimBase(s.ForumURL),
			PathPrefix:     "/api/",
			ForwardHeaders: defaultForwardHeaders(),
			Auth:           AuthOptional,
		},
		{
			Kind:           KindRapidAPI,
			BaseURL:        trimBase(s.RapidAPIURL),
			PathPrefix:     "/",
			ForwardHeaders: defaultForwardHeaders(),
			ExtraHeaders:   rapidHeaders,
			CORSHeaders:    []string{HeaderRapidAPIKey, HeaderRapidAPIHost},
			Auth:           AuthNone,
		},
		{
			Kind:           KindScraperA,
			BaseURL:        trimBase(s.ScraperAURL),
			PathPrefix:     "/",
			ForwardHeaders: defaultForwardHeaders(),
			Auth:           AuthNone,
		},
		{
			Kind:           KindScraperB,
			BaseURL:        trimBase(s.ScraperBURL),
			PathPrefix:     "/api/",
			ForwardHeaders: defaultForwardHeaders(),
			Auth:           AuthNone,
		},
	}
}

// trimBase はベースURL末尾のスラッシュを取り除く。
// パス接頭辞側が先頭スラッシュを持つため、二重スラッシュを避ける。
func trimBase(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
