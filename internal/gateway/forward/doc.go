// Package forward はゲートウェイのリクエスト転送エンジンを提供する。
//
// 論理サービス名とパスから転送先URLを組み立て、バックエンドへ1回だけ
// リクエストを送信し、その結果をOutcomeとして返す。バックエンドのエラーや
// タイムアウト、接続失敗はそれぞれ固定のステータスコードに対応付けられる。
// リトライやフェイルオーバーは行わない。
package forward
