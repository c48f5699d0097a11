// Package httpclient はゲートウェイからバックエンドサービスへのHTTP通信を行うクライアントを提供する。
//
// 1回の呼び出しで1リクエストだけを送信し、リトライは行わない。
// リクエストIDと認証済みユーザー名はコンテキストからヘッダーとして伝播する。
package httpclient
