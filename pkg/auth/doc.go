// Package auth はゲートウェイの認証層を提供する。
//
// ユーザー名とパスワードを検証してPrincipalを返すVerifierと、
// Principalを署名付きBearerトークン（HS256 JWT）として発行・検証する
// Authorityを含む。トークンはサーバー側に保存しないため失効させる手段はない。
// 有効期限を短く保つことで影響を抑える。
package auth
