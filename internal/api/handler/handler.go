package handler

import "github.com/Teskh/production-sub001/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	ShiftEstimate *ShiftEstimateHandler
	Export        *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		ShiftEstimate: NewShiftEstimateHandler(svc.ShiftEstimate),
		Export:        NewExportHandler(svc.Export),
	}
}
