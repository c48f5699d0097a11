package forward

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/campus/pkg/httpclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingDoer は呼び出し回数を記録するDoer。
type recordingDoer struct {
	calls atomic.Int32
	resp  *httpclient.Response
	err   error
}

func (d *recordingDoer) Do(_ context.Context, _, _ string, _ []byte) (*httpclient.Response, error) {
	d.calls.Add(1)
	return d.resp, d.err
}

// newBackend はテスト用のバックエンドサーバーを起動し、その登録済みレジストリを返す。
func newBackend(t *testing.T, handler http.HandlerFunc) Registry {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return Registry{"course": ts.URL, "student": ts.URL}
}

// TestParseMethod はParseMethod関数を検証する。
func TestParseMethod(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"GET", "POST", "PUT", "DELETE"} {
		if got, ok := ParseMethod(m); !ok || string(got) != m {
			t.Errorf("ParseMethod(%q) = (%q, %v), want (%q, true)", m, got, ok, m)
		}
	}
	for _, m := range []string{"PATCH", "HEAD", "OPTIONS", "get", ""} {
		if _, ok := ParseMethod(m); ok {
			t.Errorf("ParseMethod(%q) は失敗するべき", m)
		}
	}
}

// TestForward_Routing は通信前に失敗する転送を検証する。
func TestForward_Routing(t *testing.T) {
	t.Parallel()

	t.Run("未登録のサービスは通信せず404とサービス一覧を返すこと", func(t *testing.T) {
		t.Parallel()

		doer := &recordingDoer{}
		f := New(Registry{"student": "http://localhost:8001", "course": "http://localhost:8002"}, doer)

		o := f.Forward(context.Background(), Request{Service: "library", Path: "/api/books", Method: "GET"})

		if o.Kind != KindServiceNotFound {
			t.Errorf("Kind = %v, want %v", o.Kind, KindServiceNotFound)
		}
		if o.Status != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusNotFound)
		}
		if doer.calls.Load() != 0 {
			t.Errorf("通信回数 = %d, want 0", doer.calls.Load())
		}
		if want := []string{"course", "student"}; !reflect.DeepEqual(o.Diagnostic.AvailableServices, want) {
			t.Errorf("AvailableServices = %v, want %v", o.Diagnostic.AvailableServices, want)
		}
		if o.Diagnostic.Service != "library" || o.Diagnostic.Path != "/api/books" {
			t.Errorf("Diagnostic = %+v, service/pathが設定されていない", o.Diagnostic)
		}
	})

	t.Run("PATCHは通信せず405と許可メソッド一覧を返すこと", func(t *testing.T) {
		t.Parallel()

		doer := &recordingDoer{}
		f := New(Registry{"course": "http://localhost:8002"}, doer)

		o := f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses/1", Method: "PATCH"})

		if o.Kind != KindUnsupportedMethod {
			t.Errorf("Kind = %v, want %v", o.Kind, KindUnsupportedMethod)
		}
		if o.Status != http.StatusMethodNotAllowed {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusMethodNotAllowed)
		}
		if doer.calls.Load() != 0 {
			t.Errorf("通信回数 = %d, want 0", doer.calls.Load())
		}
		if want := []string{"GET", "POST", "PUT", "DELETE"}; !reflect.DeepEqual(o.Diagnostic.AllowedMethods, want) {
			t.Errorf("AllowedMethods = %v, want %v", o.Diagnostic.AllowedMethods, want)
		}
	})
}

// TestForward_Backend はバックエンドからの応答の変換を検証する。
func TestForward_Backend(t *testing.T) {
	t.Parallel()

	t.Run("成功レスポンスのステータスとJSONボディがそのまま返ること", func(t *testing.T) {
		t.Parallel()

		var gotMethod, gotPath, gotBody string
		reg := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":4,"name":"Operating Systems"}`))
		})
		f := New(reg, httpclient.New(0))

		o := f.Forward(context.Background(), Request{
			Service: "course",
			Path:    "/api/courses",
			Method:  "POST",
			Body:    []byte(`{"name":"Operating Systems"}`),
		})

		if o.Kind != KindSuccess {
			t.Fatalf("Kind = %v, want %v (diagnostic: %+v)", o.Kind, KindSuccess, o.Diagnostic)
		}
		if o.Status != http.StatusCreated {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusCreated)
		}
		if string(o.Body) != `{"id":4,"name":"Operating Systems"}` {
			t.Errorf("Body = %s", o.Body)
		}
		if gotMethod != http.MethodPost || gotPath != "/api/courses" {
			t.Errorf("バックエンドへのリクエスト = %s %s", gotMethod, gotPath)
		}
		if gotBody != `{"name":"Operating Systems"}` {
			t.Errorf("転送されたボディ = %q", gotBody)
		}
	})

	t.Run("JSONでない成功レスポンスはrawで包まれること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("plain text"))
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		var body map[string]string
		if err := json.Unmarshal(o.Body, &body); err != nil {
			t.Fatalf("ボディのパースに失敗: %v", err)
		}
		if body["raw"] != "plain text" {
			t.Errorf("raw = %q, want %q", body["raw"], "plain text")
		}
	})

	t.Run("204の空ボディはnilのまま返ること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "course", Path: "/api/courses/1", Method: "DELETE"})

		if o.Kind != KindSuccess || o.Status != http.StatusNoContent {
			t.Errorf("Outcome = (%v, %d), want (%v, %d)", o.Kind, o.Status, KindSuccess, http.StatusNoContent)
		}
		if o.Body != nil {
			t.Errorf("Body = %s, want nil", o.Body)
		}
	})

	t.Run("バックエンドのリダイレクトは追跡せず3xxのまま返ること", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Redirect(w, r, "/api/courses/", http.StatusTemporaryRedirect)
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if o.Kind != KindSuccess || o.Status != http.StatusTemporaryRedirect {
			t.Errorf("Outcome = (%v, %d), want (%v, %d)", o.Kind, o.Status, KindSuccess, http.StatusTemporaryRedirect)
		}
		if calls.Load() != 1 {
			t.Errorf("バックエンド呼び出し回数 = %d, want 1", calls.Load())
		}
	})

	t.Run("バックエンドの4xxはステータスを保ったままBackendErrorになること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Course not found"}`))
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "course", Path: "/api/courses/99", Method: "GET"})

		if o.Kind != KindBackendError {
			t.Errorf("Kind = %v, want %v", o.Kind, KindBackendError)
		}
		if o.Status != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusNotFound)
		}
		if o.Diagnostic.Error != "Service Error (404)" {
			t.Errorf("Error = %q, want %q", o.Diagnostic.Error, "Service Error (404)")
		}
		if o.Diagnostic.Message != "Course not found" {
			t.Errorf("Message = %q, want %q", o.Diagnostic.Message, "Course not found")
		}
		if o.Diagnostic.Service != "course" || o.Diagnostic.Path != "/api/courses/99" {
			t.Errorf("Diagnostic = %+v, service/pathが設定されていない", o.Diagnostic)
		}
	})

	t.Run("バックエンドの5xxでJSONでないボディはテキストがメッセージになること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("maintenance"))
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "student", Path: "/api/students", Method: "GET"})

		if o.Status != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusServiceUnavailable)
		}
		if o.Diagnostic.Message != "maintenance" {
			t.Errorf("Message = %q, want %q", o.Diagnostic.Message, "maintenance")
		}
	})
}

// TestForward_Transport は通信レベルの失敗の変換を検証する。
func TestForward_Transport(t *testing.T) {
	t.Parallel()

	t.Run("接続できないバックエンドは503で接続先URLを含むこと", func(t *testing.T) {
		t.Parallel()

		// 存在しないサーバーに接続を試みる
		f := New(Registry{"course": "http://127.0.0.1:1"}, httpclient.New(0))
		o := f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if o.Kind != KindConnectFailure {
			t.Errorf("Kind = %v, want %v (err: %v)", o.Kind, KindConnectFailure, o.Err)
		}
		if o.Status != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusServiceUnavailable)
		}
		if o.Diagnostic.URL != "http://127.0.0.1:1/api/courses" {
			t.Errorf("URL = %q, want %q", o.Diagnostic.URL, "http://127.0.0.1:1/api/courses")
		}
		if !strings.Contains(o.Diagnostic.Message, "http://127.0.0.1:1/api/courses") {
			t.Errorf("Message = %q, 接続先URLを含むべき", o.Diagnostic.Message)
		}
	})

	t.Run("時間内に応答しないバックエンドは504になること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusOK)
		})
		f := New(reg, httpclient.New(0), WithTimeout(50*time.Millisecond))

		o := f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if o.Kind != KindTimeout {
			t.Errorf("Kind = %v, want %v (err: %v)", o.Kind, KindTimeout, o.Err)
		}
		if o.Status != http.StatusGatewayTimeout {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusGatewayTimeout)
		}
		if o.Diagnostic.Timeout != "50ms" {
			t.Errorf("Timeout = %q, want %q", o.Diagnostic.Timeout, "50ms")
		}
	})

	t.Run("タイムアウトしてもリトライしないこと", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		reg := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			<-r.Context().Done()
		})
		f := New(reg, httpclient.New(0), WithTimeout(30*time.Millisecond))
		f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if calls.Load() != 1 {
			t.Errorf("バックエンド呼び出し回数 = %d, want 1", calls.Load())
		}
	})

	t.Run("途中で切断されたレスポンスは502になること", func(t *testing.T) {
		t.Parallel()

		reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("Hijackerが使えない")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("Hijackに失敗: %v", err)
				return
			}
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\npartial"))
			_ = conn.Close()
		})
		o := New(reg, httpclient.New(0)).Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if o.Kind != KindTransportError {
			t.Errorf("Kind = %v, want %v (err: %v)", o.Kind, KindTransportError, o.Err)
		}
		if o.Status != http.StatusBadGateway {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusBadGateway)
		}
	})

	t.Run("リクエストを組み立てられない場合は500になること", func(t *testing.T) {
		t.Parallel()

		doer := &recordingDoer{err: &httpclient.RequestError{Err: errors.New("bad url")}}
		o := New(Registry{"course": "http://[::1"}, doer).Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})

		if o.Kind != KindInternal {
			t.Errorf("Kind = %v, want %v", o.Kind, KindInternal)
		}
		if o.Status != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", o.Status, http.StatusInternalServerError)
		}
		if o.Diagnostic.Message != "An unexpected error occurred while processing your request" {
			t.Errorf("Message = %q", o.Diagnostic.Message)
		}
	})
}

// TestForward_Metrics は転送結果のメトリクスを検証する。
func TestForward_Metrics(t *testing.T) {
	t.Parallel()

	reg := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f := New(reg, httpclient.New(0), WithRegisterer(prometheus.NewRegistry()))

	f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "GET"})
	f.Forward(context.Background(), Request{Service: "course", Path: "/api/courses", Method: "PATCH"})
	f.Forward(context.Background(), Request{Service: "library", Path: "/api/books", Method: "GET"})

	if got := testutil.ToFloat64(f.outcomes.WithLabelValues("course", "success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.outcomes.WithLabelValues("course", "unsupported_method")); got != 1 {
		t.Errorf("unsupported_method = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.outcomes.WithLabelValues("unknown", "service_not_found")); got != 1 {
		t.Errorf("service_not_found = %v, want 1", got)
	}
}

// TestErrorMessage はエラーボディからのメッセージ抽出を検証する。
func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"detailフィールド", `{"detail":"Course not found"}`, "Course not found"},
		{"errorフィールド", `{"error":"invalid"}`, "invalid"},
		{"messageフィールド", `{"message":"boom"}`, "boom"},
		{"文字列でないdetail", `{"detail":[{"loc":["body"]}]}`, defaultErrorMessage},
		{"JSON配列", `[1,2]`, defaultErrorMessage},
		{"テキスト", "oops", "oops"},
		{"空", "", "Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := errorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("errorMessage(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}
