package model

import "time"

// WorkGroup 工作组表，对应 work_groups（由生产管理后台维护，本服务只读）
type WorkGroup struct {
	GroupKey      string  `gorm:"type:varchar(100);primaryKey"     json:"group_key"`
	Name          string  `gorm:"type:varchar(200);not null"       json:"name"`
	StationRole   string  `gorm:"type:varchar(50);not null"        json:"station_role"`
	StationID     *string `gorm:"type:varchar(64)"                 json:"station_id,omitempty"`
	SequenceOrder *int    `json:"sequence_order,omitempty"`
	IsActive      bool    `gorm:"not null;default:true"            json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (WorkGroup) TableName() string { return "work_groups" }

// WorkerAssignment 工人分组表，对应 worker_assignments（只读输入）
type WorkerAssignment struct {
	AssignmentID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"assignment_id"`
	WorkerID     string    `gorm:"type:varchar(64);not null"                      json:"worker_id"`
	WorkDate     time.Time `gorm:"type:date;not null"                             json:"work_date"`
	GroupKey     string    `gorm:"type:varchar(100);not null"                     json:"group_key"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (WorkerAssignment) TableName() string { return "worker_assignments" }
