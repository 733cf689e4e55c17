package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/internal/model"
	"github.com/Teskh/production-sub001/internal/repository"
	pkgerrors "github.com/Teskh/production-sub001/pkg/errors"
	"github.com/Teskh/production-sub001/pkg/metrics"
)

// ── 班次估算模块业务错误 ──

var (
	ErrInvalidDate             = errors.New("日期格式无效，应为 YYYY-MM-DD")
	ErrInvalidDateRange        = errors.New("开始日期不能晚于结束日期")
	ErrDateRangeTooLarge       = errors.New("日期区间超过允许的最大天数")
	ErrInvalidAlgorithmVersion = errors.New("算法版本必须为正整数")
)

// ShiftEstimateService 班次估算业务接口
//
// 缓存键为 (日期, 工作组, 算法版本)；已缓存的组不会重算或覆盖，
// 提升算法版本即可在保留旧结果的前提下重新计算。
type ShiftEstimateService interface {
	// ComputeShiftEstimates 计算闭区间内每个工作日缺失的班次估算
	// 上下文取消时返回已完成部分的汇总与 ctx.Err()
	ComputeShiftEstimates(ctx context.Context, req *dto.ComputeShiftEstimatesRequest) (*dto.ComputeShiftEstimatesResponse, error)
	// GetShiftEstimatesForDay 查询某日当前版本的估算与覆盖情况
	GetShiftEstimatesForDay(ctx context.Context, date string) (*dto.DayShiftEstimatesResponse, error)
	// GetCoverage 查询区间内每日的覆盖情况
	GetCoverage(ctx context.Context, req *dto.DateRangeRequest) ([]dto.DayCoverageResponse, error)
}

// ShiftOptions 计算参数
type ShiftOptions struct {
	AlgorithmVersion int
	GroupConcurrency int // 单日内并发计算的工作组上限
	FetchConcurrency int // 整次计算中并发拉取考勤的上限
	MaxRangeDays     int
}

// ShiftEstimateDeps 班次估算服务依赖
type ShiftEstimateDeps struct {
	Repo     *repository.Repository
	Calendar *CalendarPolicy
	Resolver GroupResolver
	Fetcher  AttendanceFetcher
	Cache    CoverageCache         // 可为 nil
	Notifier ComputeNotifier       // 可为 nil
	Metrics  *metrics.ShiftMetrics // 可为 nil
	Options  ShiftOptions
	Now      func() time.Time // 可为 nil，默认 time.Now
}

type shiftEstimateService struct {
	repo       *repository.Repository
	calendar   *CalendarPolicy
	aggregator *Aggregator
	resolver   GroupResolver
	fetcher    AttendanceFetcher
	cache      CoverageCache
	notifier   ComputeNotifier
	metrics    *metrics.ShiftMetrics
	opts       ShiftOptions
	now        func() time.Time
	logger     *zap.Logger
}

// NewShiftEstimateService 创建 ShiftEstimateService 实例
func NewShiftEstimateService(deps ShiftEstimateDeps, logger *zap.Logger) ShiftEstimateService {
	opts := deps.Options
	if opts.AlgorithmVersion <= 0 {
		opts.AlgorithmVersion = 1
	}
	if opts.GroupConcurrency <= 0 {
		opts.GroupConcurrency = 1
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 366
	}
	s := &shiftEstimateService{
		repo:       deps.Repo,
		calendar:   deps.Calendar,
		aggregator: NewAggregator(deps.Calendar),
		resolver:   deps.Resolver,
		fetcher:    deps.Fetcher,
		cache:      deps.Cache,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		opts:       opts,
		now:        deps.Now,
		logger:     logger,
	}
	if s.cache == nil {
		s.cache = nopCoverageCache{}
	}
	if s.notifier == nil {
		s.notifier = nopComputeNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ═══════════════════════════════════════════════════════════
// ComputeShiftEstimates 按日计算缺失的班次估算
// ═══════════════════════════════════════════════════════════
//
// 每日处理顺序：
//  1. 排除日（周末/节假日）直接计入 excluded_days
//  2. 解析工作组；失败则整日计入 failed_days
//  3. 对比已缓存的 group_key，只计算缺失的组
//  4. 写入冲突（并发实例已写入）按跳过处理
//
// 日期按顺序处理，单日内工作组并发计算

// dayOutcome 单日处理结果
type dayOutcome struct {
	outcome      string // metrics.Day*
	inserted     int
	conflicts    int
	workerErrors int
	err          error
}

// groupOutcome 单个工作组处理结果
type groupOutcome struct {
	inserted     bool
	conflict     bool
	workerErrors int
}

func (s *shiftEstimateService) ComputeShiftEstimates(ctx context.Context, req *dto.ComputeShiftEstimatesRequest) (*dto.ComputeShiftEstimatesResponse, error) {
	from, to, err := s.parseRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, err
	}
	version := s.opts.AlgorithmVersion
	if req.AlgorithmVersion != nil {
		if *req.AlgorithmVersion <= 0 {
			return nil, ErrInvalidAlgorithmVersion
		}
		version = *req.AlgorithmVersion
	}

	summary := &dto.ComputeShiftEstimatesResponse{
		FromDate:         FormatDate(from),
		ToDate:           FormatDate(to),
		AlgorithmVersion: version,
	}

	started := time.Now()
	fetchSem := semaphore.NewWeighted(int64(s.opts.FetchConcurrency))
	var (
		touched []time.Time
		runErr  error
	)

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		day := s.computeDay(ctx, date, version, fetchSem)

		// 已写入的行与工人拉取失败无论当日结果如何都计入
		summary.InsertedRows += day.inserted
		summary.WorkerErrors += day.workerErrors
		s.metrics.AddInsertedRows(day.inserted)
		s.metrics.AddWorkerErrors(day.workerErrors)
		for i := 0; i < day.conflicts; i++ {
			s.metrics.IncConflict()
		}
		if day.inserted > 0 {
			touched = append(touched, date)
		}

		if err := ctx.Err(); err != nil {
			// 被中断的当日不计入任何天数统计
			runErr = err
			break
		}

		switch day.outcome {
		case metrics.DayExcluded:
			summary.ExcludedDays++
		case metrics.DayFailed:
			summary.FailedDays++
		case metrics.DayComputed:
			summary.ProcessedDays++
			summary.ComputedCount++
		case metrics.DaySkipped:
			summary.ProcessedDays++
			summary.SkippedExisting++
		}
		s.metrics.ObserveDay(day.outcome)
	}

	s.metrics.ObserveRun(time.Since(started), runErr != nil)

	// 中断后仍需清理缓存并通知
	bg := context.WithoutCancel(ctx)
	s.cache.Invalidate(bg, version, touched)
	if summary.InsertedRows > 0 {
		dates := make([]string, 0, len(touched))
		for _, d := range touched {
			dates = append(dates, FormatDate(d))
		}
		s.notifier.NotifyComputed(bg, ComputedEvent{
			FromDate:         summary.FromDate,
			ToDate:           summary.ToDate,
			AlgorithmVersion: version,
			InsertedRows:     summary.InsertedRows,
			Dates:            dates,
		})
	}

	fields := []zap.Field{
		zap.String("from_date", summary.FromDate),
		zap.String("to_date", summary.ToDate),
		zap.Int("algorithm_version", version),
		zap.Int("processed_days", summary.ProcessedDays),
		zap.Int("computed_count", summary.ComputedCount),
		zap.Int("skipped_existing", summary.SkippedExisting),
		zap.Int("excluded_days", summary.ExcludedDays),
		zap.Int("failed_days", summary.FailedDays),
		zap.Int("worker_errors", summary.WorkerErrors),
		zap.Int("inserted_rows", summary.InsertedRows),
	}
	if runErr != nil {
		s.logger.Warn("班次估算计算被中断", append(fields, zap.Error(runErr))...)
		return summary, runErr
	}
	s.logger.Info("班次估算计算完成", fields...)
	return summary, nil
}

func (s *shiftEstimateService) computeDay(ctx context.Context, date time.Time, version int, fetchSem *semaphore.Weighted) dayOutcome {
	if s.calendar.Classify(date) == DayExcluded {
		return dayOutcome{outcome: metrics.DayExcluded}
	}

	log := s.logger.With(zap.String("date", FormatDate(date)), zap.Int("algorithm_version", version))

	groups, err := s.resolver.ResolveGroups(ctx, date)
	if err != nil {
		log.Error("解析工作组失败", zap.Error(err))
		return dayOutcome{outcome: metrics.DayFailed, err: err}
	}

	existing, err := s.repo.ShiftEstimate.ListGroupKeys(ctx, date, version)
	if err != nil {
		log.Error("查询已缓存估算失败", zap.Error(err))
		return dayOutcome{outcome: metrics.DayFailed, err: err}
	}
	cached := make(map[string]bool, len(existing))
	for _, k := range existing {
		cached[k] = true
	}

	missing := make([]Group, 0, len(groups))
	for _, g := range groups {
		if !cached[g.GroupKey] {
			missing = append(missing, g)
		}
	}
	if len(missing) == 0 {
		return dayOutcome{outcome: metrics.DaySkipped}
	}

	now := s.now()
	var (
		mu  sync.Mutex
		out dayOutcome
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.opts.GroupConcurrency)
	for _, g := range missing {
		g := g
		eg.Go(func() error {
			res, err := s.computeGroup(egCtx, date, g, version, now, fetchSem)
			mu.Lock()
			out.workerErrors += res.workerErrors
			if res.inserted {
				out.inserted++
			}
			if res.conflict {
				out.conflicts++
			}
			mu.Unlock()
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		if ctx.Err() == nil {
			log.Error("班次估算写入失败", zap.Error(err))
		}
		out.outcome = metrics.DayFailed
		out.err = err
		return out
	}

	if out.inserted > 0 {
		out.outcome = metrics.DayComputed
	} else {
		out.outcome = metrics.DaySkipped
	}
	log.Debug("单日计算完成",
		zap.Int("groups", len(groups)),
		zap.Int("missing", len(missing)),
		zap.Int("inserted", out.inserted),
		zap.Int("conflicts", out.conflicts),
		zap.Int("worker_errors", out.workerErrors),
	)
	return out
}

func (s *shiftEstimateService) computeGroup(
	ctx context.Context,
	date time.Time,
	group Group,
	version int,
	now time.Time,
	fetchSem *semaphore.Weighted,
) (groupOutcome, error) {
	var res groupOutcome

	fetches := make(map[string]WorkerFetch, len(group.AssignedWorkerIDs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, workerID := range group.AssignedWorkerIDs {
		workerID := workerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			var f WorkerFetch
			if err := fetchSem.Acquire(ctx, 1); err != nil {
				f.Err = err
			} else {
				f.Events, f.Err = s.fetcher.FetchEvents(ctx, workerID, date)
				fetchSem.Release(1)
			}
			mu.Lock()
			fetches[workerID] = f
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 取消后不写入半成品
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for workerID, f := range fetches {
		if f.Err != nil {
			res.workerErrors++
			s.logger.Warn("工人考勤拉取失败",
				zap.String("date", FormatDate(date)),
				zap.String("group_key", group.GroupKey),
				zap.String("worker_id", workerID),
				zap.Error(f.Err),
			)
		}
	}

	estimate := s.aggregator.Aggregate(AggregateInput{
		Date:             date,
		Group:            group,
		Fetches:          fetches,
		Now:              now,
		AlgorithmVersion: version,
	})

	if err := s.repo.ShiftEstimate.InsertIfAbsent(ctx, estimate); err != nil {
		if errors.Is(err, pkgerrors.ErrCacheConflict) {
			res.conflict = true
			s.logger.Debug("估算已存在，跳过写入",
				zap.String("date", FormatDate(date)),
				zap.String("group_key", group.GroupKey),
			)
			return res, nil
		}
		return res, fmt.Errorf("写入工作组 %s 估算失败: %w", group.GroupKey, err)
	}
	res.inserted = true
	return res, nil
}

// ═══════════════════════════════════════════════════════════
// 查询
// ═══════════════════════════════════════════════════════════

func (s *shiftEstimateService) GetShiftEstimatesForDay(ctx context.Context, dateStr string) (*dto.DayShiftEstimatesResponse, error) {
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, ErrInvalidDate
	}
	version := s.opts.AlgorithmVersion

	estimates, err := s.repo.ShiftEstimate.ListByDate(ctx, date, version)
	if err != nil {
		s.logger.Error("查询班次估算失败", zap.String("date", dateStr), zap.Error(err))
		return nil, err
	}

	keys := make([]string, 0, len(estimates))
	items := make([]dto.ShiftEstimateResponse, 0, len(estimates))
	for i := range estimates {
		keys = append(keys, estimates[i].GroupKey)
		items = append(items, toShiftEstimateResponse(&estimates[i]))
	}

	return &dto.DayShiftEstimatesResponse{
		DayCoverageResponse: s.dayCoverage(ctx, date, keys),
		AlgorithmVersion:    version,
		Estimates:           items,
	}, nil
}

func (s *shiftEstimateService) GetCoverage(ctx context.Context, req *dto.DateRangeRequest) ([]dto.DayCoverageResponse, error) {
	from, to, err := s.parseRange(req.FromDate, req.ToDate)
	if err != nil {
		return nil, err
	}
	version := s.opts.AlgorithmVersion

	result := make([]dto.DayCoverageResponse, 0, int(to.Sub(from).Hours()/24)+1)
	var misses []time.Time
	hits := make(map[string]dto.DayCoverageResponse)
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		if cov, ok := s.cache.Get(ctx, date, version); ok {
			hits[dateKey(date)] = *cov
			continue
		}
		misses = append(misses, date)
	}

	keysByDate := make(map[string][]string)
	if len(misses) > 0 {
		estimates, err := s.repo.ShiftEstimate.ListByRange(ctx, misses[0], misses[len(misses)-1], version)
		if err != nil {
			s.logger.Error("查询班次估算失败", zap.Error(err))
			return nil, err
		}
		for _, e := range estimates {
			k := dateKey(e.WorkDate)
			keysByDate[k] = append(keysByDate[k], e.GroupKey)
		}
	}

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		k := dateKey(date)
		if cov, ok := hits[k]; ok {
			result = append(result, cov)
			continue
		}
		cov := s.dayCoverage(ctx, date, keysByDate[k])
		if s.settled(date, cov) {
			s.cache.Set(ctx, date, version, cov)
		}
		result = append(result, cov)
	}
	return result, nil
}

// Day coverage statuses
const (
	DayStatusExcluded    = "excluded"
	DayStatusUnavailable = "unavailable"
	DayStatusPending     = "pending"
	DayStatusPartial     = "partial"
	DayStatusComplete    = "complete"
)

// dayCoverage 对比应有的工作组与已缓存的组
// 工作组解析失败时降级为 unavailable，不向调用方报错
func (s *shiftEstimateService) dayCoverage(ctx context.Context, date time.Time, cachedKeys []string) dto.DayCoverageResponse {
	cov := dto.DayCoverageResponse{Date: FormatDate(date), CachedCount: len(cachedKeys)}

	if s.calendar.Classify(date) == DayExcluded {
		cov.Status = DayStatusExcluded
		return cov
	}

	groups, err := s.resolver.ResolveGroups(ctx, date)
	if err != nil {
		s.logger.Warn("覆盖率查询时解析工作组失败", zap.String("date", cov.Date), zap.Error(err))
		cov.Status = DayStatusUnavailable
		return cov
	}

	cached := make(map[string]bool, len(cachedKeys))
	for _, k := range cachedKeys {
		cached[k] = true
	}
	cov.ExpectedCount = len(groups)
	cov.CachedCount = 0
	for _, g := range groups {
		if cached[g.GroupKey] {
			cov.CachedCount++
		}
	}

	switch {
	case cov.CachedCount >= cov.ExpectedCount:
		cov.Status = DayStatusComplete
	case cov.CachedCount == 0:
		cov.Status = DayStatusPending
	default:
		cov.Status = DayStatusPartial
	}
	return cov
}

// settled 只有不会再变化的覆盖情况才写入缓存：排除日，或已结束且全部缓存的工作日
// pending/partial 可能被并发计算补齐，当天及以后的工作组也可能调整
func (s *shiftEstimateService) settled(date time.Time, cov dto.DayCoverageResponse) bool {
	switch cov.Status {
	case DayStatusExcluded:
		return true
	case DayStatusComplete:
		return civilDate(date).Before(s.calendar.Today(s.now()))
	default:
		return false
	}
}

// parseRange 解析并校验闭区间
func (s *shiftEstimateService) parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	return parseDateRange(fromStr, toStr, s.opts.MaxRangeDays)
}

func parseDateRange(fromStr, toStr string, maxDays int) (time.Time, time.Time, error) {
	from, err := ParseDate(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	to, err := ParseDate(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidDate
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidDateRange
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxDays {
		return time.Time{}, time.Time{}, ErrDateRangeTooLarge
	}
	return from, to, nil
}

// ── 转换 ──

const timestampLayout = time.RFC3339

func toShiftEstimateResponse(e *model.ShiftEstimate) dto.ShiftEstimateResponse {
	return dto.ShiftEstimateResponse{
		ID:               e.ShiftEstimateID,
		Date:             FormatDate(e.WorkDate),
		GroupKey:         e.GroupKey,
		StationRole:      e.StationRole,
		StationID:        e.StationID,
		SequenceOrder:    e.SequenceOrder,
		AssignedCount:    e.AssignedCount,
		PresentCount:     e.PresentCount,
		EstimatedStart:   formatTimePtr(e.EstimatedStart),
		EstimatedEnd:     formatTimePtr(e.EstimatedEnd),
		LastExit:         formatTimePtr(e.LastExit),
		ShiftMinutes:     e.ShiftMinutes,
		Status:           string(e.Status),
		ComputedAt:       e.ComputedAt.UTC().Format(timestampLayout),
		AlgorithmVersion: e.AlgorithmVersion,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampLayout)
	return &s
}
