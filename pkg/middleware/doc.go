// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// アクセスログ、パニックリカバリ、リクエストID、HTTPメトリクス、
// CORS設定、Bearerトークンの検証など、ゲートウェイとバックエンドで
// 共通して使用するミドルウェアを含む。
package middleware
