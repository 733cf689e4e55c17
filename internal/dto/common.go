package dto

// ── 通用日期区间参数 ──

// DateRangeRequest 日期区间查询参数（YYYY-MM-DD，闭区间）
type DateRangeRequest struct {
	FromDate string `form:"from_date" json:"from_date" binding:"required"`
	ToDate   string `form:"to_date"   json:"to_date"   binding:"required"`
}
