//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Teskh/production-sub001/internal/model"
	"github.com/Teskh/production-sub001/internal/repository"
	"github.com/Teskh/production-sub001/pkg/database"
	pkgerrors "github.com/Teskh/production-sub001/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=postgres password=postgres dbname=factory_production_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// uniqueGroup 每个测试使用独立的 group_key，避免互相干扰
func uniqueGroup(t *testing.T) string {
	t.Helper()
	key := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		testDB.Where("group_key = ?", key).Delete(&model.ShiftEstimate{})
		testDB.Where("group_key = ?", key).Delete(&model.WorkerAssignment{})
		testDB.Where("group_key = ?", key).Delete(&model.WorkGroup{})
	})
	return key
}

func newEstimate(date time.Time, groupKey string, version int) *model.ShiftEstimate {
	return &model.ShiftEstimate{
		WorkDate:         date,
		GroupKey:         groupKey,
		StationRole:      "Assembly",
		AssignedCount:    2,
		PresentCount:     1,
		Status:           model.ShiftStatusProvisional,
		ComputedAt:       time.Now().UTC(),
		AlgorithmVersion: version,
	}
}

// ═══════════════════════════════════════════════════════════
// Test: ShiftEstimate
// ═══════════════════════════════════════════════════════════

func TestShiftEstimate_InsertIfAbsent(t *testing.T) {
	key := uniqueGroup(t)
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	if err := repo.ShiftEstimate.InsertIfAbsent(ctx, newEstimate(date, key, 1)); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}

	err := repo.ShiftEstimate.InsertIfAbsent(ctx, newEstimate(date, key, 1))
	if !errors.Is(err, pkgerrors.ErrCacheConflict) {
		t.Fatalf("期望 ErrCacheConflict，实际: %v", err)
	}

	// 不同算法版本互不影响
	if err := repo.ShiftEstimate.InsertIfAbsent(ctx, newEstimate(date, key, 2)); err != nil {
		t.Fatalf("新版本写入失败: %v", err)
	}

	keys, err := repo.ShiftEstimate.ListGroupKeys(ctx, date, 1)
	if err != nil {
		t.Fatalf("ListGroupKeys 失败: %v", err)
	}
	found := 0
	for _, k := range keys {
		if k == key {
			found++
		}
	}
	if found != 1 {
		t.Errorf("期望版本 1 下 1 条，实际 %d", found)
	}
}

func TestShiftEstimate_ConcurrentInsert(t *testing.T) {
	key := uniqueGroup(t)
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	date := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		inserted  int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.ShiftEstimate.InsertIfAbsent(ctx, newEstimate(date, key, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, pkgerrors.ErrCacheConflict):
				conflicts++
			default:
				t.Errorf("意外错误: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 || conflicts != writers-1 {
		t.Errorf("期望 1 条写入 %d 次冲突，实际 %d / %d", writers-1, inserted, conflicts)
	}
}

func TestShiftEstimate_ListByRange(t *testing.T) {
	key := uniqueGroup(t)
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	for day := 10; day <= 12; day++ {
		date := time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC)
		if err := repo.ShiftEstimate.InsertIfAbsent(ctx, newEstimate(date, key, 1)); err != nil {
			t.Fatalf("写入 %d 日失败: %v", day, err)
		}
	}

	list, err := repo.ShiftEstimate.ListByRange(ctx,
		time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), 1)
	if err != nil {
		t.Fatalf("ListByRange 失败: %v", err)
	}

	var days []int
	for _, e := range list {
		if e.GroupKey == key {
			days = append(days, e.WorkDate.Day())
		}
	}
	if len(days) != 2 || days[0] != 11 || days[1] != 12 {
		t.Errorf("期望 [11 12]，实际 %v", days)
	}

	byDate, err := repo.ShiftEstimate.ListByDate(ctx, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 1)
	if err != nil {
		t.Fatalf("ListByDate 失败: %v", err)
	}
	hit := false
	for _, e := range byDate {
		if e.GroupKey == key {
			hit = true
			if e.ShiftEstimateID == "" {
				t.Error("期望数据库生成 shift_estimate_id")
			}
		}
	}
	if !hit {
		t.Error("ListByDate 未返回写入的记录")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: WorkGroup / WorkerAssignment
// ═══════════════════════════════════════════════════════════

func TestWorkGroup_ListActiveAndAssignments(t *testing.T) {
	key := uniqueGroup(t)
	inactive := key + "-off"
	t.Cleanup(func() { testDB.Where("group_key = ?", inactive).Delete(&model.WorkGroup{}) })

	ctx := context.Background()
	if err := testDB.Create(&model.WorkGroup{GroupKey: key, Name: "总装", StationRole: "Assembly", IsActive: true}).Error; err != nil {
		t.Fatalf("创建工作组失败: %v", err)
	}
	if err := testDB.Create(&model.WorkGroup{GroupKey: inactive, Name: "停用", StationRole: "Assembly", IsActive: true}).Error; err != nil {
		t.Fatalf("创建工作组失败: %v", err)
	}
	testDB.Model(&model.WorkGroup{}).Where("group_key = ?", inactive).Update("is_active", false)

	date := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	for _, w := range []string{"w-2", "w-1"} {
		if err := testDB.Create(&model.WorkerAssignment{WorkerID: w, WorkDate: date, GroupKey: key}).Error; err != nil {
			t.Fatalf("创建分组失败: %v", err)
		}
	}

	repo := repository.NewRepository(testDB)

	groups, err := repo.WorkGroup.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive 失败: %v", err)
	}
	var sawActive, sawInactive bool
	for _, g := range groups {
		sawActive = sawActive || g.GroupKey == key
		sawInactive = sawInactive || g.GroupKey == inactive
	}
	if !sawActive || sawInactive {
		t.Errorf("ListActive 结果不符: active=%v inactive=%v", sawActive, sawInactive)
	}

	assignments, err := repo.WorkerAssignment.ListByDate(ctx, date)
	if err != nil {
		t.Fatalf("ListByDate 失败: %v", err)
	}
	var workers []string
	for _, a := range assignments {
		if a.GroupKey == key {
			workers = append(workers, a.WorkerID)
		}
	}
	if len(workers) != 2 || workers[0] != "w-1" || workers[1] != "w-2" {
		t.Errorf("期望按 worker_id 排序 [w-1 w-2]，实际 %v", workers)
	}
}
