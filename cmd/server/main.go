package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/config"
	"github.com/Teskh/production-sub001/internal/api/handler"
	"github.com/Teskh/production-sub001/internal/api/router"
	"github.com/Teskh/production-sub001/internal/job"
	"github.com/Teskh/production-sub001/internal/repository"
	"github.com/Teskh/production-sub001/internal/service"
	"github.com/Teskh/production-sub001/pkg/attendance"
	"github.com/Teskh/production-sub001/pkg/database"
	"github.com/Teskh/production-sub001/pkg/jwt"
	applogger "github.com/Teskh/production-sub001/pkg/logger"
	"github.com/Teskh/production-sub001/pkg/metrics"
	"github.com/Teskh/production-sub001/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("shift_timezone", cfg.Shift.Timezone),
		zap.Int("algorithm_version", cfg.Shift.AlgorithmVersion),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	rdb, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，覆盖率缓存、计算通知、限流与 Token 黑名单将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 班次日历（含 ICS 节假日）
	loc, err := time.LoadLocation(cfg.Shift.Timezone)
	if err != nil {
		logger.Fatal("加载班次时区失败", zap.Error(err))
	}
	var icsHolidays []time.Time
	if cfg.Shift.HolidayICSPath != "" {
		icsHolidays, err = service.LoadHolidayICS(cfg.Shift.HolidayICSPath, loc)
		if err != nil {
			logger.Fatal("加载节假日日历失败", zap.String("path", cfg.Shift.HolidayICSPath), zap.Error(err))
		}
		logger.Info("节假日日历已加载", zap.Int("days", len(icsHolidays)))
	}
	calCfg, err := service.BuildCalendarConfig(&cfg.Shift, icsHolidays)
	if err != nil {
		logger.Fatal("班次日历配置无效", zap.Error(err))
	}
	calendar := service.NewCalendarPolicy(calCfg)

	// 6. 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shiftMetrics := metrics.NewShiftMetrics(registry)

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, service.ShiftEstimateDeps{
		Calendar: calendar,
		Resolver: service.NewGroupResolver(repo, logger),
		Fetcher:  attendance.NewClient(&cfg.Attendance, logger),
		Cache:    service.NewCoverageCache(rdb, cfg.Shift.CoverageCacheTTL, logger),
		Notifier: service.NewComputeNotifier(rdb, logger),
		Metrics:  shiftMetrics,
		Options: service.ShiftOptions{
			AlgorithmVersion: cfg.Shift.AlgorithmVersion,
			GroupConcurrency: cfg.Shift.GroupConcurrency,
			FetchConcurrency: cfg.Shift.FetchConcurrency,
			MaxRangeDays:     cfg.Shift.MaxRangeDays,
		},
	}, logger)
	h := handler.NewHandler(svc)

	// 8. 定时补算
	var scheduler *job.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = job.NewScheduler(loc, logger)
		computeJob := job.NewComputeJob(svc.ShiftEstimate, calendar, cfg.Scheduler.LookbackDays, nil)
		if err := scheduler.AddJob(cfg.Scheduler.ComputeSpec, computeJob); err != nil {
			logger.Fatal("注册定时任务失败", zap.String("spec", cfg.Scheduler.ComputeSpec), zap.Error(err))
		}
		scheduler.Start()
		// 补上停机期间错过的定时计算
		if cfg.Scheduler.RunOnStart {
			go func() {
				if err := scheduler.RunNow(computeJob); err != nil {
					logger.Error("启动补算失败", zap.String("job", computeJob.Name()), zap.Error(err))
				}
			}()
		}
	}

	// 9. 初始化路由
	jwtMgr := jwt.NewManager(&cfg.Auth)
	engine := router.Setup(cfg, h, jwtMgr, rdb, registry, logger)

	// 10. 启动 HTTP 服务器（优雅关闭）
	// 计算接口可能处理较长区间，写超时放宽
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}

	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("服务器已关闭")
}
