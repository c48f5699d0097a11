package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/campus/pkg/httpclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// defaultErrorMessage はバックエンドのエラーボディからメッセージを取り出せない場合の文言。
const defaultErrorMessage = "An error occurred in the microservice"

// Doer はバックエンドへ1回だけリクエストを送信するHTTPクライアント。
type Doer interface {
	Do(ctx context.Context, method, url string, body []byte) (*httpclient.Response, error)
}

// Request はゲートウェイ側から見た転送要求。
type Request struct {
	// Service は論理サービス名（student, course など）。
	Service string
	// Path はバックエンドのパス（クエリ文字列を含んでもよい）。
	Path string
	// Method はHTTPメソッド。
	Method string
	// Body はPOST/PUTで送信するJSONボディ。
	Body []byte
}

// Option はForwarderのオプション。
type Option func(*Forwarder)

// WithTimeout は1回の呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// WithRegisterer は転送メトリクスを登録するPrometheusレジストリを設定する。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Forwarder) { f.registerer = reg }
}

// Forwarder はゲートウェイへのリクエストをバックエンド呼び出しに変換する。
type Forwarder struct {
	registry   Registry
	client     Doer
	timeout    time.Duration
	logger     *zap.Logger
	registerer prometheus.Registerer

	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New は新しいForwarderを生成する。
func New(registry Registry, client Doer, opts ...Option) *Forwarder {
	f := &Forwarder{
		registry: registry,
		client:   client,
		timeout:  httpclient.DefaultTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "forward",
			Name:      "outcomes_total",
			Help:      "Total number of forwarded requests by outcome",
		},
		[]string{"service", "outcome"},
	)
	f.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "forward",
			Name:      "backend_duration_seconds",
			Help:      "Duration of backend calls",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)
	if f.registerer != nil {
		f.registerer.MustRegister(f.outcomes, f.duration)
	}
	return f
}

// Services は登録済みのサービス名を返す。
func (f *Forwarder) Services() []string {
	return f.registry.Names()
}

// Forward はリクエストをバックエンドへ1回だけ転送し、その結果を返す。
// サービス名とメソッドの検証に失敗した場合は通信を行わない。
func (f *Forwarder) Forward(ctx context.Context, req Request) Outcome {
	outcome := f.forward(ctx, req)
	f.record(req, outcome)
	return outcome
}

func (f *Forwarder) forward(ctx context.Context, req Request) Outcome {
	base, ok := f.registry.Lookup(req.Service)
	if !ok {
		return failure(KindServiceNotFound, req, Diagnostic{
			Error:             "Service Not Found",
			Message:           fmt.Sprintf("The requested service '%s' is not available", req.Service),
			AvailableServices: f.registry.Names(),
		})
	}

	method, ok := ParseMethod(req.Method)
	if !ok {
		return failure(KindUnsupportedMethod, req, Diagnostic{
			Error:          "Method Not Allowed",
			Message:        fmt.Sprintf("HTTP method '%s' is not supported", req.Method),
			AllowedMethods: allowedMethodNames(),
		})
	}

	target := base + req.Path
	f.logger.Info("バックエンドへリクエストを転送します",
		zap.String("service", req.Service),
		zap.String("method", string(method)),
		zap.String("url", target),
	)

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.client.Do(callCtx, string(method), target, req.Body)
	f.duration.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
	if err != nil {
		return f.transportFailure(req, target, err)
	}

	body := normalizeBody(resp.Body)
	if resp.StatusCode >= 400 {
		outcome := failure(KindBackendError, req, Diagnostic{
			Error:   fmt.Sprintf("Service Error (%d)", resp.StatusCode),
			Message: errorMessage(resp.Body),
			Detail:  body,
		})
		outcome.Status = resp.StatusCode
		return outcome
	}

	return Outcome{
		Kind:   KindSuccess,
		Status: resp.StatusCode,
		Body:   body,
	}
}

// transportFailure は通信エラーを種類ごとのOutcomeに変換する。
func (f *Forwarder) transportFailure(req Request, target string, err error) Outcome {
	kind := classify(err)
	var d Diagnostic
	switch kind {
	case KindTimeout:
		d = Diagnostic{
			Error:   "Gateway Timeout",
			Message: fmt.Sprintf("The %s service did not respond in time", req.Service),
			Timeout: f.timeout.String(),
		}
	case KindConnectFailure:
		d = Diagnostic{
			Error:   "Service Unavailable",
			Message: fmt.Sprintf("Unable to connect to %s service at %s. Please check if the service is running.", req.Service, target),
			URL:     target,
		}
	case KindTransportError:
		d = Diagnostic{
			Error:   "Bad Gateway",
			Message: fmt.Sprintf("Error communicating with %s service", req.Service),
		}
	default:
		d = Diagnostic{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred while processing your request",
		}
	}
	outcome := failure(kind, req, d)
	outcome.Err = err
	return outcome
}

// record は転送結果をログとメトリクスに記録する。
func (f *Forwarder) record(req Request, o Outcome) {
	service := req.Service
	if o.Kind == KindServiceNotFound {
		service = "unknown"
	}
	f.outcomes.WithLabelValues(service, o.Kind.String()).Inc()

	fields := []zap.Field{
		zap.String("service", req.Service),
		zap.String("path", req.Path),
		zap.String("method", req.Method),
		zap.String("category", o.Kind.String()),
		zap.Int("status", o.Status),
	}
	if o.Err != nil {
		fields = append(fields, zap.Error(o.Err))
	}

	switch o.Kind {
	case KindSuccess:
		f.logger.Debug("バックエンドから正常に応答がありました", fields...)
	case KindBackendError, KindUnsupportedMethod:
		f.logger.Warn("バックエンドへの転送が失敗しました", fields...)
	default:
		f.logger.Error("バックエンドへの転送が失敗しました", fields...)
	}
}

// failure は診断情報付きの失敗Outcomeを生成する。
func failure(kind Kind, req Request, d Diagnostic) Outcome {
	d.Service = req.Service
	d.Path = req.Path
	return Outcome{
		Kind:       kind,
		Status:     statusFor(kind),
		Diagnostic: &d,
	}
}

// classify は通信エラーの種類を判定する。
func classify(err error) Kind {
	var reqErr *httpclient.RequestError
	if errors.As(err, &reqErr) {
		return KindInternal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindConnectFailure
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnectFailure
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return KindConnectFailure
		}
		return KindTransportError
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) {
		return KindTransportError
	}
	return KindInternal
}

// normalizeBody はレスポンスボディをJSONとして返す。
// JSONでない場合は{"raw": テキスト}で包み、空の場合はnilを返す。
func normalizeBody(body []byte) json.RawMessage {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(body)})
	if err != nil {
		return nil
	}
	return wrapped
}

// errorMessage はバックエンドのエラーボディから利用者向けメッセージを取り出す。
func errorMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "Unknown error"
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		if json.Valid(body) {
			return defaultErrorMessage
		}
		return text
	}
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return defaultErrorMessage
}
