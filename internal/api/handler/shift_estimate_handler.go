package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/internal/service"
	"github.com/Teskh/production-sub001/pkg/response"
)

// ShiftEstimateHandler 班次估算模块 HTTP 处理器
type ShiftEstimateHandler struct {
	shiftSvc service.ShiftEstimateService
}

// NewShiftEstimateHandler 创建 ShiftEstimateHandler
func NewShiftEstimateHandler(shiftSvc service.ShiftEstimateService) *ShiftEstimateHandler {
	return &ShiftEstimateHandler{shiftSvc: shiftSvc}
}

// Compute 计算区间内缺失的班次估算
// POST /api/v1/shift-estimates/compute
func (h *ShiftEstimateHandler) Compute(c *gin.Context) {
	var req dto.ComputeShiftEstimatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}

	if _, ok := MustGetUserID(c); !ok {
		return
	}

	summary, err := h.shiftSvc.ComputeShiftEstimates(c.Request.Context(), &req)
	if err != nil {
		if summary != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			response.ErrorWithData(c, http.StatusServiceUnavailable, 14005, "计算被中断，已返回部分结果", summary)
			return
		}
		h.handleShiftError(c, err)
		return
	}

	response.OK(c, summary)
}

// GetDay 查询某日班次估算
// GET /api/v1/shift-estimates/day/:date
func (h *ShiftEstimateHandler) GetDay(c *gin.Context) {
	date := c.Param("date")
	if date == "" {
		response.BadRequest(c, 10001, "日期不能为空")
		return
	}

	result, err := h.shiftSvc.GetShiftEstimatesForDay(c.Request.Context(), date)
	if err != nil {
		h.handleShiftError(c, err)
		return
	}

	response.OK(c, result)
}

// GetCoverage 查询区间内每日覆盖情况
// GET /api/v1/shift-estimates/coverage?from_date=&to_date=
func (h *ShiftEstimateHandler) GetCoverage(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	days, err := h.shiftSvc.GetCoverage(c.Request.Context(), &req)
	if err != nil {
		h.handleShiftError(c, err)
		return
	}

	response.OK(c, gin.H{"list": days})
}

func (h *ShiftEstimateHandler) handleShiftError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 14001, "日期格式无效，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 14002, "开始日期不能晚于结束日期")
	case errors.Is(err, service.ErrDateRangeTooLarge):
		response.BadRequest(c, 14003, "日期区间超过允许的最大天数")
	case errors.Is(err, service.ErrInvalidAlgorithmVersion):
		response.BadRequest(c, 14004, "算法版本必须为正整数")
	default:
		response.InternalError(c)
	}
}
