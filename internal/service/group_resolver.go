package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/internal/repository"
)

// dbGroupResolver 基于 work_groups + worker_assignments 的工作组解析
//
// 返回全部启用的工作组（无人排班的组 AssignedWorkerIDs 为空），
// 指向未知或停用工作组的排班记录会被忽略并告警。
type dbGroupResolver struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewGroupResolver 创建基于数据库的 GroupResolver
func NewGroupResolver(repo *repository.Repository, logger *zap.Logger) GroupResolver {
	return &dbGroupResolver{repo: repo, logger: logger}
}

func (r *dbGroupResolver) ResolveGroups(ctx context.Context, date time.Time) ([]Group, error) {
	groups, err := r.repo.WorkGroup.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询工作组失败: %w", err)
	}
	assignments, err := r.repo.WorkerAssignment.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("查询工人排班失败: %w", err)
	}

	result := make([]Group, 0, len(groups))
	index := make(map[string]int, len(groups))
	seen := make(map[string]map[string]bool, len(groups))
	for _, g := range groups {
		if _, dup := index[g.GroupKey]; dup {
			continue
		}
		index[g.GroupKey] = len(result)
		seen[g.GroupKey] = make(map[string]bool)
		result = append(result, Group{
			GroupKey:          g.GroupKey,
			StationRole:       g.StationRole,
			StationID:         g.StationID,
			SequenceOrder:     g.SequenceOrder,
			AssignedWorkerIDs: []string{},
		})
	}

	orphans := 0
	for _, a := range assignments {
		i, ok := index[a.GroupKey]
		if !ok {
			orphans++
			continue
		}
		if seen[a.GroupKey][a.WorkerID] {
			continue
		}
		seen[a.GroupKey][a.WorkerID] = true
		result[i].AssignedWorkerIDs = append(result[i].AssignedWorkerIDs, a.WorkerID)
	}
	if orphans > 0 {
		r.logger.Warn("存在指向未知或停用工作组的排班记录",
			zap.String("date", FormatDate(date)),
			zap.Int("count", orphans),
		)
	}

	return result, nil
}
