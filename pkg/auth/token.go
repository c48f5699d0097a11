package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はトークンのデフォルト有効期間。
const DefaultTokenTTL = 30 * time.Minute

// トークン検証のエラー。クライアントにはすべて同じ401として返す。
var (
	// ErrInvalidSignature は署名が一致しないことを表す。
	ErrInvalidSignature = errors.New("トークンの署名が不正です")
	// ErrExpired は有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
	// ErrMalformed はトークンを解析できないことを表す。
	ErrMalformed = errors.New("トークンの形式が不正です")
)

// Claims はゲートウェイが発行するトークンのクレーム。
type Claims struct {
	jwt.RegisteredClaims
	// Role はユーザーのロール。
	Role string `json:"role"`
}

// Authority はBearerトークンの発行と検証を行う。
// 生成後は読み取り専用で、複数のリクエストから同時に使用できる。
type Authority struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewAuthority は署名用シークレットとデフォルト有効期間からAuthorityを生成する。
// ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewAuthority(secret string, ttl time.Duration) (*Authority, error) {
	if secret == "" {
		return nil, errors.New("JWT署名用シークレットが空です")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	a := &Authority{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	a.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	)
	return a, nil
}

// TTL はデフォルトの有効期間を返す。
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue はPrincipalを埋め込んだトークンを発行する。
// ttlが0以下の場合はAuthorityのデフォルト有効期間を使用する。
func (a *Authority) Issue(p Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = a.ttl
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			ExpiresAt: jwt.NewNumericDate(a.now().Add(ttl)),
		},
		Role: p.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、Principalを復元する。
// 失敗時はErrInvalidSignature、ErrExpired、ErrMalformedのいずれかを返す。
func (a *Authority) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Principal{}, ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return Principal{}, ErrExpired
	default:
		return Principal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if claims.Subject == "" || claims.Role == "" {
		return Principal{}, ErrMalformed
	}
	return Principal{Username: claims.Subject, Role: claims.Role}, nil
}
