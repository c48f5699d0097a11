package auth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// User は認証対象ユーザーの登録情報。設定から注入される。
type User struct {
	// Username はユーザー名。
	Username string `yaml:"username"`
	// Password は平文のパスワード。初期化時にハッシュ化される。
	Password string `yaml:"password"`
	// Role はユーザーのロール。
	Role string `yaml:"role"`
}

// DefaultUsers はユーザー設定が無い場合に使う組み込みユーザー。
func DefaultUsers() []User {
	return []User{
		{Username: "admin", Password: "admin123", Role: "admin"},
		{Username: "user", Password: "user123", Role: "user"},
	}
}

// PasswordHasher はパスワードのハッシュ化と照合を行う。
type PasswordHasher interface {
	// Hash はパスワードをハッシュ化する。
	Hash(password string) (string, error)
	// Compare はハッシュとパスワードが一致すればnilを返す。
	Compare(hash, password string) error
}

// BcryptHasher はbcryptによるPasswordHasher。
type BcryptHasher struct {
	// Cost はbcryptのコスト。0の場合はbcrypt.DefaultCost。
	Cost int
}

// Hash はパスワードをbcryptでハッシュ化する。
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// Compare はbcryptハッシュとパスワードを照合する。
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// Mode は資格情報照合の動作モード。
type Mode string

const (
	// ModeUninitialized はまだ初回の認証が行われていない状態。
	ModeUninitialized Mode = "uninitialized"
	// ModeHashed はハッシュ化したパスワードで照合する通常モード。
	ModeHashed Mode = "hashed"
	// ModeDegraded はハッシュ化の初期化に失敗し平文で照合する縮退モード。本番では使用しないこと。
	ModeDegraded Mode = "degraded"
)

// credentialStore はユーザーレジストリの照合方式ごとの実装。
type credentialStore interface {
	mode() Mode
	authenticate(username, password string) (Principal, bool)
}

// VerifierOption はVerifierのオプション。
type VerifierOption func(*Verifier)

// WithHasher はパスワードハッシャーを差し替える。
func WithHasher(h PasswordHasher) VerifierOption {
	return func(v *Verifier) { v.hasher = h }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *zap.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

// WithRegisterer は縮退モードのカウンターを登録するPrometheusレジストリを設定する。
func WithRegisterer(reg prometheus.Registerer) VerifierOption {
	return func(v *Verifier) { v.registerer = reg }
}

// Verifier はユーザー名とパスワードを検証してPrincipalを返す。
// ユーザーレジストリは初回の認証時に一度だけ構築され、以後は読み取り専用となる。
type Verifier struct {
	users      []User
	hasher     PasswordHasher
	logger     *zap.Logger
	registerer prometheus.Registerer

	once     sync.Once
	ready    atomic.Bool
	store    credentialStore
	degraded prometheus.Counter
}

// NewVerifier は固定のユーザー一覧からVerifierを生成する。
func NewVerifier(users []User, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		users:  append([]User(nil), users...),
		hasher: BcryptHasher{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	v.degraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "auth",
		Name:      "degraded_verifications_total",
		Help:      "Total number of credential checks performed in degraded plaintext mode",
	})
	if v.registerer != nil {
		v.registerer.MustRegister(v.degraded)
	}
	return v
}

// Mode は現在の照合モードを返す。初回の認証前はModeUninitialized。
func (v *Verifier) Mode() Mode {
	if !v.ready.Load() {
		return ModeUninitialized
	}
	return v.store.mode()
}

// Authenticate はユーザー名とパスワードを検証する。
// 存在しないユーザーとパスワード誤りは区別せずfalseを返す。
func (v *Verifier) Authenticate(username, password string) (Principal, bool) {
	v.once.Do(v.init)
	return v.store.authenticate(username, password)
}

// init はユーザーレジストリを構築する。ハッシュ化に失敗した場合は縮退モードになる。
func (v *Verifier) init() {
	store, err := newHashedStore(v.users, v.hasher)
	if err == nil {
		v.store = store
		v.ready.Store(true)
		v.logger.Info("ユーザーレジストリを初期化しました", zap.Int("users", len(v.users)))
		return
	}

	v.logger.Error("パスワードハッシュの初期化に失敗しました。平文照合の縮退モードで動作します（本番環境では使用しないこと）",
		zap.Error(err))
	v.store = newPlaintextStore(v.users, v.logger, v.degraded)
	v.ready.Store(true)
}
