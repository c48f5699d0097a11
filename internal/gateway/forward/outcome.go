package forward

import (
	"encoding/json"
	"net/http"
)

// Kind はバックエンド呼び出し結果の種類。
type Kind int

const (
	// KindSuccess はバックエンドが400未満のステータスを返したことを表す。
	KindSuccess Kind = iota
	// KindBackendError はバックエンドが400以上のステータスを返したことを表す。
	KindBackendError
	// KindServiceNotFound は論理サービス名がレジストリに無いことを表す。
	KindServiceNotFound
	// KindUnsupportedMethod は転送できないHTTPメソッドであることを表す。
	KindUnsupportedMethod
	// KindTimeout はバックエンドが時間内に応答しなかったことを表す。
	KindTimeout
	// KindConnectFailure はバックエンドに接続できなかったことを表す。
	KindConnectFailure
	// KindTransportError はその他の通信エラーを表す。
	KindTransportError
	// KindInternal は想定外の失敗を表す。
	KindInternal
)

// String はメトリクスやログに使う名前を返す。
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindBackendError:
		return "backend_error"
	case KindServiceNotFound:
		return "service_not_found"
	case KindUnsupportedMethod:
		return "unsupported_method"
	case KindTimeout:
		return "timeout"
	case KindConnectFailure:
		return "connect_failure"
	case KindTransportError:
		return "transport_error"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Diagnostic は失敗した転送の診断情報。
type Diagnostic struct {
	// Error はエラーの分類名。
	Error string `json:"error"`
	// Message は利用者向けのメッセージ。
	Message string `json:"message"`
	// Service は論理サービス名。
	Service string `json:"service"`
	// Path はバックエンドのパス。
	Path string `json:"path"`
	// AvailableServices は登録済みのサービス名（KindServiceNotFoundのみ）。
	AvailableServices []string `json:"available_services,omitempty"`
	// AllowedMethods は転送可能なメソッド（KindUnsupportedMethodのみ）。
	AllowedMethods []string `json:"allowed_methods,omitempty"`
	// URL は接続を試みたURL（KindConnectFailureのみ）。
	URL string `json:"url,omitempty"`
	// Timeout はタイムアウト時間（KindTimeoutのみ）。
	Timeout string `json:"timeout,omitempty"`
	// Detail はバックエンドが返したエラーボディ（KindBackendErrorのみ）。
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Outcome はバックエンド呼び出し1回分の結果。
// KindSuccessの場合はBodyを、それ以外はDiagnosticを持つ。
type Outcome struct {
	// Kind は結果の種類。
	Kind Kind
	// Status はクライアントへ返すHTTPステータスコード。
	Status int
	// Body はKindSuccessの場合のレスポンスボディ（JSON）。空の場合はnil。
	Body json.RawMessage
	// Diagnostic はKindSuccess以外の場合の診断情報。
	Diagnostic *Diagnostic
	// Err は通信エラーなどの内部エラー。ログ出力のみに使用する。
	Err error
}

// OK は転送が成功したかどうかを返す。
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// statusFor は失敗の種類に対応するステータスコードを返す。
// KindSuccessとKindBackendErrorはバックエンドのステータスをそのまま使う。
func statusFor(k Kind) int {
	switch k {
	case KindServiceNotFound:
		return http.StatusNotFound
	case KindUnsupportedMethod:
		return http.StatusMethodNotAllowed
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindConnectFailure:
		return http.StatusServiceUnavailable
	case KindTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
