package job

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job 定时任务
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler 定时任务调度器
// 同一任务上一次未结束时跳过本次触发；Stop 会取消正在运行的任务并等待其退出
type Scheduler struct {
	cron   *cron.Cron
	wg     sync.WaitGroup // RunNow 发起的任务
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewScheduler 创建调度器；表达式含秒字段，按 loc 时区解释
func NewScheduler(loc *time.Location, logger *zap.Logger) *Scheduler {
	logger = logger.With(zap.String("component", "scheduler"))
	cl := cronLogger{sugar: logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddJob 注册任务
// 表达式示例：
//   - "0 30 2 * * *"  每天 02:30:00
//   - "@every 1h"     每小时
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}
	s.logger.Info("定时任务已注册", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

// RunNow 立即执行一次任务（不经过调度），阻塞至任务结束
// Stop 会取消并等待经由 RunNow 启动的任务
func (s *Scheduler) RunNow(job Job) error {
	s.wg.Add(1)
	defer s.wg.Done()
	s.logger.Info("立即执行任务", zap.String("job", job.Name()))
	return job.Run(s.ctx)
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("调度器已启动")
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("调度器已停止")
}

func (s *Scheduler) runJob(job Job) {
	start := time.Now()
	s.logger.Debug("任务开始", zap.String("job", job.Name()))
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("任务执行失败",
			zap.String("job", job.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("任务完成", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)))
}

// cronLogger 将 cron 内部日志转到 zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
