package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/internal/service"
	"github.com/Teskh/production-sub001/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportShiftEstimates 导出班次估算
// GET /api/v1/export/shift-estimates?from_date=&to_date=
func (h *ExportHandler) ExportShiftEstimates(c *gin.Context) {
	var req dto.DateRangeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from_date 与 to_date 不能为空")
		return
	}

	buf, filename, err := h.exportSvc.ExportShiftEstimates(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 14001, "日期格式无效，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 14002, "开始日期不能晚于结束日期")
	case errors.Is(err, service.ErrDateRangeTooLarge):
		response.BadRequest(c, 14003, "日期区间超过允许的最大天数")
	case errors.Is(err, service.ErrExportNoEstimates):
		response.NotFound(c, 14101, "所选区间内暂无班次估算")
	default:
		response.InternalError(c)
	}
}
