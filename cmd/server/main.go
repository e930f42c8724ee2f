package main

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"slipway/internal/common"
	"slipway/internal/server/dao"
	"slipway/internal/server/handler"
	"slipway/internal/server/middleware"
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

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})
	defer queueClient.Close()

	if config.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(logger))

	handlers := handler.NewHandlers(config, logger, db, queueClient)
	handlers.RegisterRoutes(router)

	logger.Info("server listening", zap.String("addr", config.ListenAddr))
	if config.CertPath != "" {
		err = router.RunTLS(config.ListenAddr, config.CertPath, config.KeyPath)
	} else {
		err = router.Run(config.ListenAddr)
	}
	if err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
