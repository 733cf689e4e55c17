package repository

import (
	"time"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	WorkGroup        WorkGroupRepository
	WorkerAssignment WorkerAssignmentRepository
	ShiftEstimate    ShiftEstimateRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		WorkGroup:        NewWorkGroupRepo(db),
		WorkerAssignment: NewWorkerAssignmentRepo(db),
		ShiftEstimate:    NewShiftEstimateRepo(db),
	}
}

// dateParam 日期列统一按 YYYY-MM-DD 传参，避免会话时区影响 DATE 比较
func dateParam(d time.Time) string {
	return d.Format("2006-01-02")
}
