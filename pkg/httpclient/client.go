package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout はバックエンド呼び出し1回あたりのデフォルトのタイムアウト。
const DefaultTimeout = 30 * time.Second

// Response はバックエンドからのレスポンス。ボディは読み切った状態で保持する。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。
	Header http.Header
	// Body はレスポンスボディ。
	Body []byte
}

// Client はバックエンド通信用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は新しいHTTPクライアントを生成する。timeoutが0以下の場合はDefaultTimeoutを使用する。
// バックエンドからのリダイレクトは追跡しない。
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			// リダイレクトは追跡せず3xxをそのまま呼び出し元に返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Timeout は1回の呼び出しに適用されるタイムアウトを返す。
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Do は指定URLにリクエストを1回だけ送信し、レスポンスボディを読み切って返す。
// bodyがnilでなければJSONとして送信する。
// 送信前の失敗は*RequestErrorを返し、それ以外は通信エラーをそのまま返す。
func (c *Client) Do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// コンテキストからリクエストIDとユーザー名を伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		req.Header.Set(HeaderRequestID, requestID)
	}
	if username, ok := ctx.Value(contextKeyUsername).(string); ok {
		req.Header.Set(HeaderUsername, username)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// RequestError はリクエストを組み立てられず送信しなかったことを表す。
type RequestError struct {
	// Err は元のエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTPリクエストの作成に失敗: %v", e.Err)
}

// Unwrap は元のエラーを返す。
func (e *RequestError) Unwrap() error {
	return e.Err
}

const (
	// HeaderRequestID はリクエストIDを伝播するヘッダーキー。
	HeaderRequestID = "X-Request-ID"
	// HeaderUsername は認証済みユーザー名を伝播するヘッダーキー。
	HeaderUsername = "X-User-Name"
)

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
	contextKeyRequestID contextKey = "request_id"
	// contextKeyUsername はコンテキストにユーザー名を格納するためのキー。
	contextKeyUsername contextKey = "username"
)

// WithRequestID はコンテキストにリクエストIDを設定する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// WithUsername はコンテキストに認証済みユーザー名を設定する。
// バックエンドへの転送時にユーザーを伝播するために使用する。
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, contextKeyUsername, username)
}
