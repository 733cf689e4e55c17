package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Teskh/production-sub001/internal/model"
)

// WorkGroupRepository 工作组数据访问接口（只读）
type WorkGroupRepository interface {
	ListActive(ctx context.Context) ([]model.WorkGroup, error)
}

// WorkerAssignmentRepository 工人分组数据访问接口（只读）
type WorkerAssignmentRepository interface {
	ListByDate(ctx context.Context, date time.Time) ([]model.WorkerAssignment, error)
}

// ── WorkGroup Repository 实现 ──

type workGroupRepo struct {
	db *gorm.DB
}

func NewWorkGroupRepo(db *gorm.DB) WorkGroupRepository {
	return &workGroupRepo{db: db}
}

func (r *workGroupRepo) ListActive(ctx context.Context) ([]model.WorkGroup, error) {
	var groups []model.WorkGroup
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sequence_order ASC NULLS LAST, group_key ASC").
		Find(&groups).Error
	return groups, err
}

// ── WorkerAssignment Repository 实现 ──

type workerAssignmentRepo struct {
	db *gorm.DB
}

func NewWorkerAssignmentRepo(db *gorm.DB) WorkerAssignmentRepository {
	return &workerAssignmentRepo{db: db}
}

func (r *workerAssignmentRepo) ListByDate(ctx context.Context, date time.Time) ([]model.WorkerAssignment, error) {
	var assignments []model.WorkerAssignment
	err := r.db.WithContext(ctx).
		Where("work_date = ?", dateParam(date)).
		Order("group_key ASC, worker_id ASC").
		Find(&assignments).Error
	return assignments, err
}
