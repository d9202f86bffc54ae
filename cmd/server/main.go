package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/scrape_go_server/config"
	"github.com/qs3c/scrape_go_server/internal/api"
	"github.com/qs3c/scrape_go_server/internal/api/handler"
	"github.com/qs3c/scrape_go_server/internal/crawler"
	"github.com/qs3c/scrape_go_server/internal/database"
	"github.com/qs3c/scrape_go_server/internal/engine"
	"github.com/qs3c/scrape_go_server/internal/model"
	"github.com/qs3c/scrape_go_server/internal/pkg/oss"
	"github.com/qs3c/scrape_go_server/internal/pkg/pubsub"
	"github.com/qs3c/scrape_go_server/internal/pkg/ws"
	"github.com/qs3c/scrape_go_server/internal/repository"
	"github.com/qs3c/scrape_go_server/internal/scheduler"
	"github.com/qs3c/scrape_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	if err := db.AutoMigrate(
		&model.ScrapeJob{},
		&model.ScrapeHistory{},
		&model.CronTrigger{},
		&model.Article{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Redis 进度消息转发给 WebSocket 订阅者
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			wsHub.SendToJob(msg.JobID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil {
			log.Printf("Progress subscriber stopped: %v", err)
		}
	}()

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	triggerRepo := repository.NewTriggerRepository(db)
	articleRepo := repository.NewArticleRepository(db)

	// 初始化 OSS（未配置时 CSV 导出回落到本地目录）
	var ossClient *oss.Client
	if cfg.OSS.Endpoint != "" {
		ossClient, err = oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to init OSS client: %v", err)
		}
		log.Println("OSS client initialized")
	}
	exporter := oss.NewExporter(ossClient, cfg.Export.LocalDir)

	// 注册爬虫
	crawlers := crawler.NewRegistry()
	for _, site := range cfg.Crawlers {
		crawlers.Register(site.Ref, crawler.NewGenericFactory(crawler.SiteConfig{
			Name:        site.Name,
			ListURL:     site.ListURL,
			BaseURL:     site.BaseURL,
			LinkPattern: site.LinkPattern,
		}, articleRepo, exporter))
	}
	log.Printf("Crawlers registered: %v", crawlers.Refs())

	// 初始化执行引擎与调度器
	publisher := pubsub.NewPublisher(rdb)
	eng := engine.New(jobRepo, historyRepo, crawlers, publisher, cfg.Engine.MaxWorkers)
	sched := scheduler.New(jobRepo, triggerRepo, eng)

	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	if cfg.Scheduler.RunDueOnStart {
		submitted, err := sched.RunDue(time.Now())
		if err != nil {
			log.Printf("Failed to run due jobs: %v", err)
		} else {
			log.Printf("Due jobs submitted on start: %d", submitted)
		}
	}

	// 初始化 Service
	jobService := service.NewJobService(jobRepo, historyRepo, sched, eng)

	if cfg.Cleanup.Enabled {
		housekeeper := service.NewHousekeeper(historyRepo, cfg.Cleanup.HistoryRetentionDays)
		housekeeper.Start()
		log.Println("Housekeeping started")
	}

	// 初始化 Handler
	jobHandler := handler.NewJobHandler(jobService, eng)
	schedulerHandler := handler.NewSchedulerHandler(sched)
	websocketHandler := handler.NewWebSocketHandler(wsHub)

	// 初始化 Router
	router := api.NewRouter(
		jobHandler,
		schedulerHandler,
		websocketHandler,
		cfg,
	)
	ginEngine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := ginEngine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
