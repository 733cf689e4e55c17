package service

import (
	"context"
	"time"

	"github.com/Teskh/production-sub001/internal/model"
)

// Group 某日的一个工作组及其排班工人
type Group struct {
	GroupKey          string
	StationRole       string
	StationID         *string
	SequenceOrder     *int
	AssignedWorkerIDs []string // 已去重
}

// GroupResolver 解析某日需要计算的工作组
// 返回错误表示该日整体不可用
type GroupResolver interface {
	ResolveGroups(ctx context.Context, date time.Time) ([]Group, error)
}

// AttendanceFetcher 拉取单个工人某日的打卡事件
// 返回错误只影响该工人；事件顺序不做保证
type AttendanceFetcher interface {
	FetchEvents(ctx context.Context, workerID string, date time.Time) ([]model.AttendanceEvent, error)
}
