// Package upstream は転送先バックエンド（アップストリーム）のレジストリを提供する。
//
// 論理名（lottery, forum, rapidapi, scraper-a, scraper-b）からベースURL・パス接頭辞・
// ヘッダーの癖などを解決する。レジストリはプロセス起動時に一度だけ構築され、
// 以降は読み取り専用として扱う。
package upstream
