// コースサービスのエントリポイント。
// コースのCRUDをインメモリSQLiteで提供する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/campus/internal/course"
	"github.com/nao1215/campus/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	logger, err := logging.New(logging.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  logging.Format(os.Getenv("LOG_FORMAT")),
		Service: "course",
	})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := course.OpenStore(ctx, logger)
	if err != nil {
		logger.Fatal("コースストアの初期化に失敗", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	logger.Info("コースサービスを起動します", zap.String("port", port))
	if err := course.NewServer(port, store, logger).Run(ctx); err != nil {
		logger.Error("コースサービスの起動に失敗", zap.Error(err))
	}
}
