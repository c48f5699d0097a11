package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/campus/pkg/auth"
	"github.com/nao1215/campus/pkg/httpclient"
	"github.com/nao1215/campus/pkg/logging"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath は設定ファイルのパスを指定する環境変数。
const EnvConfigPath = "GATEWAY_CONFIG"

// Config はゲートウェイの設定。
// デフォルト値、設定ファイル、環境変数の順に上書きされる。
type Config struct {
	// Port はリッスンポート。
	Port string `yaml:"port"`
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL はアクセストークンの有効期間。
	TokenTTL time.Duration `yaml:"token_ttl"`
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcryptのデフォルト。
	BcryptCost int `yaml:"bcrypt_cost"`
	// ForwardTimeout はバックエンド呼び出し1回あたりのタイムアウト。
	ForwardTimeout time.Duration `yaml:"forward_timeout"`
	// Services は論理サービス名からベースURLへの対応。
	Services map[string]string `yaml:"services"`
	// AllowedOrigins はCORSで許可するオリジン。"*"で全て許可する。
	AllowedOrigins []string `yaml:"allowed_origins"`
	// Users はログインを許可するユーザー。
	Users []auth.User `yaml:"users"`
	// Log はロガーの設定。
	Log logging.Config `yaml:"log"`
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		Port:           "8000",
		JWTSecret:      "dev-secret-key",
		TokenTTL:       auth.DefaultTokenTTL,
		ForwardTimeout: httpclient.DefaultTimeout,
		Services: map[string]string{
			"student": "http://localhost:8001",
			"course":  "http://localhost:8002",
		},
		AllowedOrigins: []string{"*"},
		Users:          auth.DefaultUsers(),
		Log: logging.Config{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// LoadConfig は設定を読み込む。
// getenvで取得したGATEWAY_CONFIGが指すYAMLファイルを読み、環境変数で上書きしてから検証する。
func LoadConfig(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if path := getenv(EnvConfigPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv は環境変数による上書きを適用する。
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TOKEN_TTLの解析に失敗: %w", err)
		}
		c.TokenTTL = d
	}
	if v := getenv("FORWARD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FORWARD_TIMEOUTの解析に失敗: %w", err)
		}
		c.ForwardTimeout = d
	}
	if v := getenv("STUDENT_SERVICE_URL"); v != "" {
		c.setService("student", v)
	}
	if v := getenv("COURSE_SERVICE_URL"); v != "" {
		c.setService("course", v)
	}
	if v := getenv("FRONTEND_URL"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = logging.Format(v)
	}
	return nil
}

func (c *Config) setService(name, baseURL string) {
	if c.Services == nil {
		c.Services = make(map[string]string)
	}
	c.Services[name] = baseURL
}

// Validate は設定値を検証する。
func (c Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("不正なポート番号: %q", c.Port))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT署名用シークレットが空です"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("トークンの有効期間は正の値が必要です: %s", c.TokenTTL))
	}
	if c.ForwardTimeout <= 0 {
		errs = append(errs, fmt.Errorf("転送タイムアウトは正の値が必要です: %s", c.ForwardTimeout))
	}
	if len(c.Services) == 0 {
		errs = append(errs, errors.New("サービスが1つも登録されていません"))
	}
	for name, base := range c.Services {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("サービス %s のURLが不正です: %q", name, base))
		}
	}
	if len(c.Users) == 0 {
		errs = append(errs, errors.New("ユーザーが1人も登録されていません"))
	}
	seen := make(map[string]struct{}, len(c.Users))
	for _, u := range c.Users {
		if u.Username == "" || u.Password == "" || u.Role == "" {
			errs = append(errs, fmt.Errorf("ユーザー %q の設定が不完全です", u.Username))
		}
		if _, dup := seen[u.Username]; dup {
			errs = append(errs, fmt.Errorf("ユーザー %q が重複しています", u.Username))
		}
		seen[u.Username] = struct{}{}
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole, "":
	default:
		errs = append(errs, fmt.Errorf("不正なログ形式: %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}
