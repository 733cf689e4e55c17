package dto

// ── 班次估算模块 DTO ──

// ComputeShiftEstimatesRequest 班次估算计算请求
type ComputeShiftEstimatesRequest struct {
	FromDate         string `json:"from_date"         binding:"required"`
	ToDate           string `json:"to_date"           binding:"required"`
	AlgorithmVersion *int   `json:"algorithm_version" binding:"omitempty,min=1"`
}

// ── 响应 ──

// ComputeShiftEstimatesResponse 计算结果汇总
//
// processed_days 含命中缓存与新计算的天数；排除日与整日失败的日期不计入
type ComputeShiftEstimatesResponse struct {
	FromDate         string `json:"from_date"`
	ToDate           string `json:"to_date"`
	AlgorithmVersion int    `json:"algorithm_version"`
	ProcessedDays    int    `json:"processed_days"`
	ComputedCount    int    `json:"computed_count"`
	SkippedExisting  int    `json:"skipped_existing"`
	ExcludedDays     int    `json:"excluded_days"`
	WorkerErrors     int    `json:"worker_errors"`
	FailedDays       int    `json:"failed_days"`
	InsertedRows     int    `json:"inserted_rows"`
}

// ShiftEstimateResponse 单个工作组的班次估算
type ShiftEstimateResponse struct {
	ID               string  `json:"id"`
	Date             string  `json:"date"`
	GroupKey         string  `json:"group_key"`
	StationRole      string  `json:"station_role"`
	StationID        *string `json:"station_id"`
	SequenceOrder    *int    `json:"sequence_order"`
	AssignedCount    int     `json:"assigned_count"`
	PresentCount     int     `json:"present_count"`
	EstimatedStart   *string `json:"estimated_start"`
	EstimatedEnd     *string `json:"estimated_end"`
	LastExit         *string `json:"last_exit"`
	ShiftMinutes     *int    `json:"shift_minutes"`
	Status           string  `json:"status"`
	ComputedAt       string  `json:"computed_at"`
	AlgorithmVersion int     `json:"algorithm_version"`
}

// DayCoverageResponse 单日覆盖情况
type DayCoverageResponse struct {
	Date          string `json:"date"`
	Status        string `json:"status"` // excluded | unavailable | pending | partial | complete
	ExpectedCount int    `json:"expected_count"`
	CachedCount   int    `json:"cached_count"`
}

// DayShiftEstimatesResponse 单日班次估算详情
type DayShiftEstimatesResponse struct {
	DayCoverageResponse
	AlgorithmVersion int                     `json:"algorithm_version"`
	Estimates        []ShiftEstimateResponse `json:"estimates"`
}
