package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/internal/dto"
	"github.com/Teskh/production-sub001/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoEstimates  = errors.New("所选区间内暂无班次估算")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出当前算法版本下区间内的全部班次估算，时间按班次时区显示
type ExportService interface {
	ExportShiftEstimates(ctx context.Context, req *dto.DateRangeRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo     *repository.Repository
	calendar *CalendarPolicy
	version  int
	maxDays  int
	logger   *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, calendar *CalendarPolicy, opts ShiftOptions, logger *zap.Logger) ExportService {
	maxDays := opts.MaxRangeDays
	if maxDays <= 0 {
		maxDays = 366
	}
	version := opts.AlgorithmVersion
	if version <= 0 {
		version = 1
	}
	return &exportService{repo: repo, calendar: calendar, version: version, maxDays: maxDays, logger: logger}
}

var exportHeaders = []string{
	"日期", "工作组", "工位角色", "工位", "顺序",
	"排班人数", "出勤人数", "预计开始", "预计结束", "最后下班", "班次时长(分钟)", "状态",
}

var statusNames = map[string]string{
	"no_workers":   "无排班",
	"provisional":  "进行中",
	"completed":    "已完成",
	"partial_data": "数据不全",
	"excluded":     "非工作日",
}

// ═══════════════════════════════════════════════════════════
// ExportShiftEstimates 导出班次估算为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "班次估算"，首行标题，第二行表头
//   - 每行一个 (日期, 工作组)，按日期、顺序排序
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportShiftEstimates(ctx context.Context, req *dto.DateRangeRequest) (*bytes.Buffer, string, error) {
	from, to, err := parseDateRange(req.FromDate, req.ToDate, s.maxDays)
	if err != nil {
		return nil, "", err
	}

	estimates, err := s.repo.ShiftEstimate.ListByRange(ctx, from, to, s.version)
	if err != nil {
		s.logger.Error("查询班次估算失败", zap.Error(err))
		return nil, "", err
	}
	if len(estimates) == 0 {
		return nil, "", ErrExportNoEstimates
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "班次估算"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "D", 16)
	f.SetColWidth(sheetName, colName(4), colName(len(exportHeaders)-1), 14)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("班次估算 %s ~ %s（算法版本 %d）", FormatDate(from), FormatDate(to), s.version))
	f.MergeCell(sheetName, "A1", cell(colName(len(exportHeaders)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	for i, h := range exportHeaders {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(exportHeaders)-1), 2), headerStyle)

	// 数据行
	loc := s.calendar.Location()
	for i := range estimates {
		e := &estimates[i]
		row := 3 + i
		values := []interface{}{
			FormatDate(e.WorkDate),
			e.GroupKey,
			e.StationRole,
			derefString(e.StationID),
			derefInt(e.SequenceOrder),
			e.AssignedCount,
			e.PresentCount,
			localClock(e.EstimatedStart, loc),
			localClock(e.EstimatedEnd, loc),
			localClock(e.LastExit, loc),
			derefInt(e.ShiftMinutes),
			statusName(string(e.Status)),
		}
		for col, v := range values {
			f.SetCellValue(sheetName, cell(colName(col), row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("班次估算_%s_%s.xlsx", FormatDate(from), FormatDate(to))
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func localClock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("15:04")
}

func statusName(status string) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return status
}

func derefString(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func derefInt(p *int) interface{} {
	if p == nil {
		return "-"
	}
	return *p
}
