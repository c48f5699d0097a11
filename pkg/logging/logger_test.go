package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト設定でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("infoレベルが有効であるべき")
		}
		if logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugレベルは無効であるべき")
		}
	})

	t.Run("コンソール形式とdebugレベルを指定できること", func(t *testing.T) {
		t.Parallel()

		logger, err := New(Config{Level: "DEBUG", Format: FormatConsole, Service: "gateway"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugレベルが有効であるべき")
		}
	})

	t.Run("不正なログレベルでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(Config{Level: "verbose"}); err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
	})
}
