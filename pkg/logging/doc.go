// Package logging はzapベースの構造化ロガーを生成する。
//
// 全サービスで共通のエンコーダ設定（タイムスタンプ、レベル、呼び出し元）を使い、
// 出力形式（JSON/コンソール）とログレベルを設定から切り替える。
package logging
