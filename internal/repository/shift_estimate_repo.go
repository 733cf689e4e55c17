package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Teskh/production-sub001/internal/model"
	pkgerrors "github.com/Teskh/production-sub001/pkg/errors"
)

// pgUniqueViolation PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

// ShiftEstimateRepository 班次估算缓存数据访问接口
//
// 缓存键为 (work_date, group_key, algorithm_version)，由数据库唯一约束保证，
// 多个计算实例并发写入时以数据库为准，不依赖进程内锁。
type ShiftEstimateRepository interface {
	// InsertIfAbsent 原子写入；键已存在时返回 pkgerrors.ErrCacheConflict
	InsertIfAbsent(ctx context.Context, estimate *model.ShiftEstimate) error
	// ListGroupKeys 某日某版本已缓存的 group_key
	ListGroupKeys(ctx context.Context, date time.Time, version int) ([]string, error)
	// ListByDate 某日某版本的全部估算
	ListByDate(ctx context.Context, date time.Time, version int) ([]model.ShiftEstimate, error)
	// ListByRange 闭区间内某版本的全部估算
	ListByRange(ctx context.Context, from, to time.Time, version int) ([]model.ShiftEstimate, error)
}

type shiftEstimateRepo struct {
	db *gorm.DB
}

func NewShiftEstimateRepo(db *gorm.DB) ShiftEstimateRepository {
	return &shiftEstimateRepo{db: db}
}

func (r *shiftEstimateRepo) InsertIfAbsent(ctx context.Context, estimate *model.ShiftEstimate) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "work_date"}, {Name: "group_key"}, {Name: "algorithm_version"},
			},
			DoNothing: true,
		}).
		Create(estimate)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return pkgerrors.ErrCacheConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrCacheConflict
	}
	return nil
}

func (r *shiftEstimateRepo) ListGroupKeys(ctx context.Context, date time.Time, version int) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&model.ShiftEstimate{}).
		Where("work_date = ? AND algorithm_version = ?", dateParam(date), version).
		Pluck("group_key", &keys).Error
	return keys, err
}

func (r *shiftEstimateRepo) ListByDate(ctx context.Context, date time.Time, version int) ([]model.ShiftEstimate, error) {
	var estimates []model.ShiftEstimate
	err := r.db.WithContext(ctx).
		Where("work_date = ? AND algorithm_version = ?", dateParam(date), version).
		Order("sequence_order ASC NULLS LAST, group_key ASC").
		Find(&estimates).Error
	return estimates, err
}

func (r *shiftEstimateRepo) ListByRange(ctx context.Context, from, to time.Time, version int) ([]model.ShiftEstimate, error) {
	var estimates []model.ShiftEstimate
	err := r.db.WithContext(ctx).
		Where("work_date BETWEEN ? AND ? AND algorithm_version = ?", dateParam(from), dateParam(to), version).
		Order("work_date ASC, sequence_order ASC NULLS LAST, group_key ASC").
		Find(&estimates).Error
	return estimates, err
}

// isUniqueViolation 识别并发写入导致的唯一约束冲突
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
