package service

import (
	"errors"
	"math"
	"time"

	"github.com/Teskh/production-sub001/internal/model"
)

// ErrFetchMissing 排班工人缺少拉取结果（按拉取失败处理）
var ErrFetchMissing = errors.New("缺少工人考勤拉取结果")

// WorkerFetch 单个工人的考勤拉取结果；Err 非空表示拉取失败
type WorkerFetch struct {
	Events []model.AttendanceEvent
	Err    error
}

// AggregateInput 聚合输入
type AggregateInput struct {
	Date             time.Time              // 日期值（UTC 零点表示）
	Group            Group                  // 工作组
	Fetches          map[string]WorkerFetch // worker_id → 拉取结果
	Now              time.Time              // 判定“日期已过去”的当前时间
	AlgorithmVersion int
}

// Aggregator 将 (日期, 工作组, 各工人打卡事件) 聚合为一条班次估算
// 纯计算，无 I/O，可并发调用
type Aggregator struct {
	calendar *CalendarPolicy
}

// NewAggregator 创建聚合器
func NewAggregator(calendar *CalendarPolicy) *Aggregator {
	return &Aggregator{calendar: calendar}
}

// Aggregate 执行聚合
func (a *Aggregator) Aggregate(in AggregateInput) *model.ShiftEstimate {
	estimate := &model.ShiftEstimate{
		WorkDate:         civilDate(in.Date),
		GroupKey:         in.Group.GroupKey,
		StationRole:      in.Group.StationRole,
		StationID:        in.Group.StationID,
		SequenceOrder:    in.Group.SequenceOrder,
		AssignedCount:    len(in.Group.AssignedWorkerIDs),
		ComputedAt:       in.Now.UTC(),
		AlgorithmVersion: in.AlgorithmVersion,
	}

	if estimate.AssignedCount == 0 {
		estimate.Status = model.ShiftStatusNoWorkers
		return estimate
	}

	dayStart, dayEnd := a.calendar.DayBounds(in.Date)

	var (
		start     *time.Time
		lastExit  *time.Time
		anyFailed bool
	)
	for _, workerID := range in.Group.AssignedWorkerIDs {
		fetch, ok := in.Fetches[workerID]
		if !ok {
			fetch = WorkerFetch{Err: ErrFetchMissing}
		}
		if fetch.Err != nil {
			anyFailed = true
			continue
		}

		ins, outs := partitionEvents(workerID, fetch.Events, dayStart, dayEnd)
		if len(ins) == 0 {
			// 只有下班卡或无打卡的工人不算出勤
			continue
		}
		estimate.PresentCount++

		for _, t := range ins {
			if start == nil || t.Before(*start) {
				v := t
				start = &v
			}
		}
		for _, t := range outs {
			if lastExit == nil || t.After(*lastExit) {
				v := t
				lastExit = &v
			}
		}
	}

	if start != nil {
		end := start.Add(a.calendar.StandardDuration(in.Group.StationRole))
		estimate.EstimatedStart = start
		estimate.EstimatedEnd = &end
		estimate.LastExit = lastExit

		until := end
		if lastExit != nil {
			until = *lastExit
		}
		minutes := shiftMinutes(*start, until)
		estimate.ShiftMinutes = &minutes
	}

	datePast := civilDate(in.Date).Before(a.calendar.Today(in.Now))
	estimate.Status = resolveStatus(estimate.AssignedCount, anyFailed, estimate.LastExit != nil, datePast)
	return estimate
}

// resolveStatus 按优先级判定状态
//  1. 任一工人拉取失败 → partial_data
//  2. 无排班工人 → no_workers
//  3. 已有下班卡或日期已过去 → completed
//  4. 其余（含已排班但尚无人上班打卡）→ provisional
func resolveStatus(assigned int, anyFailed, hasLastExit, datePast bool) model.ShiftStatus {
	switch {
	case anyFailed:
		return model.ShiftStatusPartialData
	case assigned == 0:
		return model.ShiftStatusNoWorkers
	case hasLastExit || datePast:
		return model.ShiftStatusCompleted
	default:
		return model.ShiftStatusProvisional
	}
}

// partitionEvents 过滤出当日（[dayStart, dayEnd)）属于该工人的上/下班卡，时间戳去重并统一为 UTC
func partitionEvents(workerID string, events []model.AttendanceEvent, dayStart, dayEnd time.Time) (ins, outs []time.Time) {
	seenIn := make(map[int64]bool)
	seenOut := make(map[int64]bool)
	for _, e := range events {
		if e.WorkerID != "" && e.WorkerID != workerID {
			continue
		}
		if e.Timestamp.Before(dayStart) || !e.Timestamp.Before(dayEnd) {
			continue
		}
		key := e.Timestamp.UnixNano()
		switch e.EventType {
		case model.EventClockIn:
			if !seenIn[key] {
				seenIn[key] = true
				ins = append(ins, e.Timestamp.UTC())
			}
		case model.EventClockOut:
			if !seenOut[key] {
				seenOut[key] = true
				outs = append(outs, e.Timestamp.UTC())
			}
		}
	}
	return ins, outs
}

// shiftMinutes 四舍五入到分钟，下限为 0
func shiftMinutes(from, to time.Time) int {
	m := int(math.Round(to.Sub(from).Minutes()))
	if m < 0 {
		return 0
	}
	return m
}
