package service

import (
	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	ShiftEstimate ShiftEstimateService
	Export        ExportService
}

// NewService 创建 Service 聚合
func NewService(repo *repository.Repository, deps ShiftEstimateDeps, logger *zap.Logger) *Service {
	deps.Repo = repo
	return &Service{
		ShiftEstimate: NewShiftEstimateService(deps, logger),
		Export:        NewExportService(repo, deps.Calendar, deps.Options, logger),
	}
}
