package model

import "time"

// ShiftStatus 班次估算状态（封闭枚举）
type ShiftStatus string

const (
	ShiftStatusNoWorkers   ShiftStatus = "no_workers"
	ShiftStatusProvisional ShiftStatus = "provisional"
	ShiftStatusCompleted   ShiftStatus = "completed"
	ShiftStatusPartialData ShiftStatus = "partial_data"
	ShiftStatusExcluded    ShiftStatus = "excluded"
)

// Valid 是否为已定义状态
func (s ShiftStatus) Valid() bool {
	switch s {
	case ShiftStatusNoWorkers, ShiftStatusProvisional, ShiftStatusCompleted,
		ShiftStatusPartialData, ShiftStatusExcluded:
		return true
	}
	return false
}

// ShiftEstimate 班次估算缓存表，对应 shift_estimates
// (work_date, group_key, algorithm_version) 唯一；行只追加，不更新
type ShiftEstimate struct {
	ShiftEstimateID  string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"                json:"id"`
	WorkDate         time.Time   `gorm:"type:date;not null;uniqueIndex:uq_shift_estimates_date_group_version,priority:1" json:"date"`
	GroupKey         string      `gorm:"type:varchar(100);not null;uniqueIndex:uq_shift_estimates_date_group_version,priority:2" json:"group_key"`
	StationRole      string      `gorm:"type:varchar(50);not null"                                     json:"station_role"`
	StationID        *string     `gorm:"type:varchar(64)"                                              json:"station_id,omitempty"`
	SequenceOrder    *int        `json:"sequence_order,omitempty"`
	AssignedCount    int         `gorm:"not null"                                                      json:"assigned_count"`
	PresentCount     int         `gorm:"not null"                                                      json:"present_count"`
	EstimatedStart   *time.Time  `json:"estimated_start,omitempty"`
	EstimatedEnd     *time.Time  `json:"estimated_end,omitempty"`
	LastExit         *time.Time  `json:"last_exit,omitempty"`
	ShiftMinutes     *int        `json:"shift_minutes,omitempty"`
	Status           ShiftStatus `gorm:"type:varchar(20);not null"                                     json:"status"`
	ComputedAt       time.Time   `gorm:"not null"                                                      json:"computed_at"`
	AlgorithmVersion int         `gorm:"not null;uniqueIndex:uq_shift_estimates_date_group_version,priority:3" json:"algorithm_version"`
}

// TableName 指定表名
func (ShiftEstimate) TableName() string { return "shift_estimates" }

// AttendanceEventType 打卡类型
type AttendanceEventType string

const (
	EventClockIn  AttendanceEventType = "clock_in"
	EventClockOut AttendanceEventType = "clock_out"
)

// AttendanceEvent 外部考勤系统的打卡事件（不落库）
type AttendanceEvent struct {
	WorkerID  string              `json:"worker_id"`
	Timestamp time.Time           `json:"timestamp"`
	EventType AttendanceEventType `json:"event_type"`
}
