package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Gopher0727/GlobalChat/config"
	"github.com/Gopher0727/GlobalChat/internal/consumer"
	"github.com/Gopher0727/GlobalChat/internal/gateway"
	"github.com/Gopher0727/GlobalChat/internal/globalchat"
	"github.com/Gopher0727/GlobalChat/internal/handlers"
	"github.com/Gopher0727/GlobalChat/internal/messenger"
	"github.com/Gopher0727/GlobalChat/internal/pkg/kafka"
	"github.com/Gopher0727/GlobalChat/internal/proxy"
	"github.com/Gopher0727/GlobalChat/internal/repositories"
	"github.com/Gopher0727/GlobalChat/internal/routers"
	"github.com/Gopher0727/GlobalChat/internal/services"
	"github.com/Gopher0727/GlobalChat/internal/storage"
	"github.com/Gopher0727/GlobalChat/internal/utils"
	"github.com/Gopher0727/GlobalChat/middleware/jwt"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
	"github.com/Gopher0727/GlobalChat/utils/snowflake"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot gateway, relay workers and management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadAll()
	if err != nil {
		return err
	}
	defer log.Close()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := snowflake.NewGenerator(cfg.Snowflake.WorkerID)
	if err != nil {
		return err
	}

	// 初始化领域层
	members := proxy.NewCatalogue(store, ids, log)
	engine := proxy.NewEngine(store, log)
	resolver := proxy.NewResolver(members, engine, log)
	reg := globalchat.NewRegistry(store, ids, log)
	if err := reg.Warm(ctx); err != nil {
		return fmt.Errorf("加载全局频道失败: %w", err)
	}

	var session *discordgo.Session
	var out messenger.Messenger = messenger.NewRecorder()
	if cfg.Discord.Enabled {
		session, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("创建 discord 会话失败: %w", err)
		}
		out = messenger.NewDiscord(session, cfg.Discord.WebhookName, log)
	} else {
		log.Warn("discord disabled, deliveries are only recorded in memory")
	}
	router := globalchat.NewRouter(reg, out, cfg.Relay.DefaultPrefix, cfg.Relay.FanoutLimit, log)

	// 初始化全局 Worker Pool (协程池)
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, log)
	pool.Start()
	defer pool.Stop()

	messageService := services.NewMessageService(resolver, reg, router, out, pool, log)

	var sink gateway.Sink = messageService
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(&cfg.Kafka, log)
		if err != nil {
			return fmt.Errorf("kafka 生产者初始化失败: %w", err)
		}
		defer producer.Close()
		sink = producer

		eventConsumer := consumer.NewEventConsumer(messageService, log)
		kc, err := kafka.NewConsumer(&cfg.Kafka, eventConsumer.Handle, log)
		if err != nil {
			return fmt.Errorf("kafka 消费者初始化失败: %w", err)
		}
		kc.Start(ctx)
		defer kc.Stop()
	}

	if session != nil {
		gw := gateway.NewDiscord(session, sink, log)
		if err := gw.Start(ctx); err != nil {
			return err
		}
		defer gw.Stop()
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	tm := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)
	routers.SetupRoutes(r, tm, log,
		handlers.NewProxyHandler(services.NewProxyService(members, engine)),
		handlers.NewGlobalChatHandler(services.NewGlobalChatService(reg)),
	)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("正在启动服务器", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// openStore 按配置选择存储后端；启用 Redis 时在 PostgreSQL 前加读缓存
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repositories.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return repositories.NewMemoryStore(), func() {}, nil
	}

	db, err := storage.InitPostgres(&cfg.Postgres, log)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres 初始化失败: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		return nil, nil, err
	}
	closers := []func(){func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store repositories.Store = repositories.NewGormStore(db)
	if cfg.Redis.Enabled {
		rdb, err := storage.InitRedis(ctx, &cfg.Redis, log)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis 初始化失败: %w", err)
		}
		closers = append(closers, func() { rdb.Close() })
		store = repositories.NewCachedStore(store, rdb, cfg.Store.CacheTTL, log)
	}
	return store, closeAll, nil
}
