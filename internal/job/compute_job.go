package job

import (
	"context"
	"fmt"
	"time"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/internal/service"
)

// ComputeJob 夜间补算：计算最近 lookbackDays 个已结束的日期（不含今天）
type ComputeJob struct {
	svc          service.ShiftEstimateService
	calendar     *service.CalendarPolicy
	lookbackDays int
	now          func() time.Time
}

// NewComputeJob 创建补算任务；now 为 nil 时使用 time.Now
func NewComputeJob(svc service.ShiftEstimateService, calendar *service.CalendarPolicy, lookbackDays int, now func() time.Time) *ComputeJob {
	if lookbackDays <= 0 {
		lookbackDays = 1
	}
	if now == nil {
		now = time.Now
	}
	return &ComputeJob{svc: svc, calendar: calendar, lookbackDays: lookbackDays, now: now}
}

func (j *ComputeJob) Name() string { return "shift_estimates_compute" }

func (j *ComputeJob) Run(ctx context.Context) error {
	from, to := j.window()
	_, err := j.svc.ComputeShiftEstimates(ctx, &dto.ComputeShiftEstimatesRequest{
		FromDate: service.FormatDate(from),
		ToDate:   service.FormatDate(to),
	})
	if err != nil {
		return fmt.Errorf("补算 %s ~ %s 失败: %w", service.FormatDate(from), service.FormatDate(to), err)
	}
	return nil
}

// window 以班次时区的“今天”为基准向前取 lookbackDays 天
func (j *ComputeJob) window() (time.Time, time.Time) {
	today := j.calendar.Today(j.now())
	return today.AddDate(0, 0, -j.lookbackDays), today.AddDate(0, 0, -1)
}
