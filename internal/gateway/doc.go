// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// ユーザー名とパスワードによるログイン、Bearerトークンの発行と検証、
// 学生サービスとコースサービスへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// バックエンドの失敗はクライアント向けの一貫したエラーレスポンスに変換する。
package gateway
