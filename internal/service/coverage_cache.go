package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/pkg/redis"
)

// ComputedChannel 计算完成通知频道
const ComputedChannel = "shift_estimates:computed"

// CoverageCache 单日覆盖情况缓存
// 读失败按未命中处理，写失败只记日志，不影响主流程
type CoverageCache interface {
	Get(ctx context.Context, date time.Time, version int) (*dto.DayCoverageResponse, bool)
	Set(ctx context.Context, date time.Time, version int, coverage dto.DayCoverageResponse)
	Invalidate(ctx context.Context, version int, dates []time.Time)
}

// ComputedEvent 计算完成通知内容
type ComputedEvent struct {
	FromDate         string   `json:"from_date"`
	ToDate           string   `json:"to_date"`
	AlgorithmVersion int      `json:"algorithm_version"`
	InsertedRows     int      `json:"inserted_rows"`
	Dates            []string `json:"dates"`
}

// ComputeNotifier 计算完成后通知下游（看板等）
type ComputeNotifier interface {
	NotifyComputed(ctx context.Context, event ComputedEvent)
}

// ── Redis 实现 ──

type redisCoverageCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCoverageCache rdb 为 nil 时返回空实现
func NewCoverageCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) CoverageCache {
	if rdb == nil || ttl <= 0 {
		return nopCoverageCache{}
	}
	return &redisCoverageCache{rdb: rdb, ttl: ttl, logger: logger}
}

func coverageKey(date time.Time, version int) string {
	return fmt.Sprintf("shift_estimates:coverage:v%d:%s", version, FormatDate(date))
}

func (c *redisCoverageCache) Get(ctx context.Context, date time.Time, version int) (*dto.DayCoverageResponse, bool) {
	var cov dto.DayCoverageResponse
	ok, err := c.rdb.GetJSON(ctx, coverageKey(date, version), &cov)
	if err != nil {
		c.logger.Warn("读取覆盖率缓存失败", zap.String("date", FormatDate(date)), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &cov, true
}

func (c *redisCoverageCache) Set(ctx context.Context, date time.Time, version int, coverage dto.DayCoverageResponse) {
	if err := c.rdb.SetJSON(ctx, coverageKey(date, version), coverage, c.ttl); err != nil {
		c.logger.Warn("写入覆盖率缓存失败", zap.String("date", FormatDate(date)), zap.Error(err))
	}
}

func (c *redisCoverageCache) Invalidate(ctx context.Context, version int, dates []time.Time) {
	if len(dates) == 0 {
		return
	}
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, coverageKey(d, version))
	}
	if err := c.rdb.Del(ctx, keys...); err != nil {
		c.logger.Warn("清除覆盖率缓存失败", zap.Int("days", len(dates)), zap.Error(err))
	}
}

type redisComputeNotifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewComputeNotifier rdb 为 nil 时返回空实现
func NewComputeNotifier(rdb *redis.Client, logger *zap.Logger) ComputeNotifier {
	if rdb == nil {
		return nopComputeNotifier{}
	}
	return &redisComputeNotifier{rdb: rdb, logger: logger}
}

func (n *redisComputeNotifier) NotifyComputed(ctx context.Context, event ComputedEvent) {
	if err := n.rdb.PublishJSON(ctx, ComputedChannel, event); err != nil {
		n.logger.Warn("发布计算完成通知失败", zap.Error(err))
	}
}

// ── 空实现 ──

type nopCoverageCache struct{}

func (nopCoverageCache) Get(context.Context, time.Time, int) (*dto.DayCoverageResponse, bool) {
	return nil, false
}
func (nopCoverageCache) Set(context.Context, time.Time, int, dto.DayCoverageResponse) {}
func (nopCoverageCache) Invalidate(context.Context, int, []time.Time)                 {}

type nopComputeNotifier struct{}

func (nopComputeNotifier) NotifyComputed(context.Context, ComputedEvent) {}
