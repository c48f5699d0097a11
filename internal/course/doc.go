// Package course はコース管理のバックエンドサービスを提供する。
//
// ゲートウェイから転送される /api/courses 以下のリクエストを処理し、
// コースの一覧、取得、作成、部分更新、削除を行う。
// データはインメモリSQLiteに保持し、起動時に埋め込みマイグレーションで初期データを投入する。
package course
