// 学生サービスのエントリポイント。
// 学生のCRUDをインメモリSQLiteで提供する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/campus/internal/student"
	"github.com/nao1215/campus/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	logger, err := logging.New(logging.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  logging.Format(os.Getenv("LOG_FORMAT")),
		Service: "student",
	})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := student.OpenStore(ctx, logger)
	if err != nil {
		logger.Fatal("学生ストアの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	logger.Info("学生サービスを起動します", zap.String("port", port))
	if err := student.NewServer(port, store, logger).Run(ctx); err != nil {
		logger.Error("学生サービスの起動に失敗", zap.Error(err))
	}
}
