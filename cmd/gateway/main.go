// API Gatewayサービスのエントリポイント。
// ログインとBearerトークンの発行、学生サービスとコースサービスへの転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/campus/internal/gateway"
	"github.com/nao1215/campus/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := gateway.LoadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	cfg.Log.Service = "gateway"
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Gatewayサービスを起動します",
		zap.String("port", cfg.Port),
		zap.Any("services", cfg.Services),
	)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("Gatewayサービスの起動に失敗", zap.Error(err))
	}
}
