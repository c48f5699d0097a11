package forward

import "net/http"

// Method は転送可能なHTTPメソッド。
type Method string

const (
	// MethodGet はGETメソッド。
	MethodGet Method = http.MethodGet
	// MethodPost はPOSTメソッド。
	MethodPost Method = http.MethodPost
	// MethodPut はPUTメソッド。
	MethodPut Method = http.MethodPut
	// MethodDelete はDELETEメソッド。
	MethodDelete Method = http.MethodDelete
)

// AllowedMethods は転送可能なメソッドの一覧。
var AllowedMethods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete}

// ParseMethod は文字列を転送可能なメソッドに変換する。
// 一覧に無いメソッドの場合はfalseを返す。
func ParseMethod(s string) (Method, bool) {
	switch Method(s) {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return Method(s), true
	default:
		return "", false
	}
}

// allowedMethodNames はAllowedMethodsを文字列スライスで返す。
func allowedMethodNames() []string {
	names := make([]string, len(AllowedMethods))
	for i, m := range AllowedMethods {
		names[i] = string(m)
	}
	return names
}
