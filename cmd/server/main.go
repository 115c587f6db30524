package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"lingua-quiz/config"
	"lingua-quiz/internal/api"
	"lingua-quiz/internal/ingest"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/storage"
	"lingua-quiz/internal/topics"
	"lingua-quiz/internal/tts"
	"lingua-quiz/internal/validator"
)

// sweepLimit 每次巡检覆盖的最近行数
const sweepLimit = 200

func main() {
	// 加载配置
	cfg := config.LoadConfig()

	// 创建日志器
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("启动题目合成服务", "env", cfg.Server.Env)

	// 创建MinIO客户端
	minioClient, err := storage.NewMinioClient(&cfg.MinIO, log)
	if err != nil {
		log.Fatal("创建MinIO客户端失败", "error", err)
	}

	// 连接数据库
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("连接数据库失败", "error", err)
	}

	// 创建入库组装器并建表
	assembler := ingest.NewAssembler(db, cfg.Pipeline.DedupeByStableID, log)
	if err := assembler.Migrate(); err != nil {
		log.Fatal("数据库建表失败", "error", err)
	}

	// 创建语音合成客户端
	engine := tts.NewHTTPEngine(&cfg.Speech)
	synth := tts.NewClient(engine, minioClient, cfg.Speech, cfg.Pipeline, log)

	// 创建主题分类器
	classifier := topics.NewClassifier(&cfg.OpenAI, &cfg.Pipeline, log)

	// 创建音频校验器
	checker := validator.New(int64(cfg.Pipeline.MinAudioBytes))

	// 创建API服务器
	server := api.NewServer(cfg, classifier, synth, assembler, checker, log)

	// 创建定时任务
	c := cron.New(cron.WithSeconds())

	// 每天凌晨2点巡检最近入库题目的音频
	_, err = c.AddFunc("0 0 2 * * *", func() {
		log.Info("定时任务触发：音频可达性巡检")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		server.SweepAudio(ctx, sweepLimit)
	})

	if err != nil {
		log.Warn("添加定时任务失败", "error", err)
	} else {
		c.Start()
		defer c.Stop()
		log.Info("定时任务已启动")
	}

	// 创建通道接收系统信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 启动服务器（非阻塞）
	go func() {
		log.Info("服务器正在监听", "port", cfg.Server.Port)
		if err := server.Run(); err != nil {
			log.Fatal("服务器运行失败", "error", err)
		}
	}()

	// 等待退出信号
	<-quit
	log.Info("收到退出信号，正在关闭服务")
}
