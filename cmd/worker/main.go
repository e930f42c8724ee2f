package main

import (
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"slipway/internal/common"
	"slipway/internal/server/dao"
	"slipway/internal/worker"
)

func main() {
	godotenv.Load()
	config := common.LoadConfig()
	logger := common.NewLogger(config)
	defer logger.Sync()

	db, err := dao.OpenDB(config)
	if err != nil {
		logger.Fatal("open database failed", zap.Error(err))
	}

	logger.Info("worker starting",
		zap.Int("concurrency", config.WorkerConcurrency),
		zap.Strings("docker_hosts", config.DockerHosts))
	if err := worker.New(config, logger, db).Run(); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}
