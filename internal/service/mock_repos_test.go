package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Teskh/production-sub001/internal/model"
	"github.com/Teskh/production-sub001/internal/repository"
	pkgerrors "github.com/Teskh/production-sub001/pkg/errors"
)

// ── Mock WorkGroupRepository ──

type mockWorkGroupRepo struct {
	groups []model.WorkGroup
	err    error
}

func (m *mockWorkGroupRepo) ListActive(_ context.Context) ([]model.WorkGroup, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []model.WorkGroup
	for _, g := range m.groups {
		if g.IsActive {
			result = append(result, g)
		}
	}
	return result, nil
}

// ── Mock WorkerAssignmentRepository ──

type mockAssignmentRepo struct {
	byDate map[string][]model.WorkerAssignment
	err    error
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{byDate: make(map[string][]model.WorkerAssignment)}
}

func (m *mockAssignmentRepo) add(date, groupKey string, workerIDs ...string) {
	d, _ := ParseDate(date)
	for _, id := range workerIDs {
		m.byDate[date] = append(m.byDate[date], model.WorkerAssignment{WorkerID: id, WorkDate: d, GroupKey: groupKey})
	}
}

func (m *mockAssignmentRepo) ListByDate(_ context.Context, date time.Time) ([]model.WorkerAssignment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byDate[FormatDate(date)], nil
}

// ── Mock ShiftEstimateRepository ──

// mockShiftEstimateRepo 内存实现，按 (date, group_key, version) 唯一
type mockShiftEstimateRepo struct {
	mu       sync.Mutex
	rows     map[string]model.ShiftEstimate
	inserts  int
	nextID   int
	listErr  error
	insertFn func(e *model.ShiftEstimate) error // 非 nil 时在写入前调用，可注入错误
}

func newMockShiftEstimateRepo() *mockShiftEstimateRepo {
	return &mockShiftEstimateRepo{rows: make(map[string]model.ShiftEstimate)}
}

func estimateKey(date time.Time, groupKey string, version int) string {
	return fmt.Sprintf("%s|%s|%d", FormatDate(date), groupKey, version)
}

func (m *mockShiftEstimateRepo) InsertIfAbsent(_ context.Context, e *model.ShiftEstimate) error {
	if m.insertFn != nil {
		if err := m.insertFn(e); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	key := estimateKey(e.WorkDate, e.GroupKey, e.AlgorithmVersion)
	if _, ok := m.rows[key]; ok {
		return pkgerrors.ErrCacheConflict
	}
	m.nextID++
	e.ShiftEstimateID = fmt.Sprintf("est-%d", m.nextID)
	m.rows[key] = *e
	return nil
}

func (m *mockShiftEstimateRepo) ListGroupKeys(_ context.Context, date time.Time, version int) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	rows, _ := m.ListByDate(context.Background(), date, version)
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.GroupKey)
	}
	return keys, nil
}

func (m *mockShiftEstimateRepo) ListByDate(_ context.Context, date time.Time, version int) ([]model.ShiftEstimate, error) {
	return m.ListByRange(context.Background(), date, date, version)
}

func (m *mockShiftEstimateRepo) ListByRange(_ context.Context, from, to time.Time, version int) ([]model.ShiftEstimate, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ShiftEstimate
	for _, r := range m.rows {
		if r.AlgorithmVersion != version || r.WorkDate.Before(from) || r.WorkDate.After(to) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].WorkDate.Equal(result[j].WorkDate) {
			return result[i].WorkDate.Before(result[j].WorkDate)
		}
		return result[i].GroupKey < result[j].GroupKey
	})
	return result, nil
}

func (m *mockShiftEstimateRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *mockShiftEstimateRepo) get(date, groupKey string, version int) (model.ShiftEstimate, bool) {
	d, _ := ParseDate(date)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[estimateKey(d, groupKey, version)]
	return r, ok
}

func newTestRepository(estimates *mockShiftEstimateRepo) *repository.Repository {
	return &repository.Repository{
		WorkGroup:        &mockWorkGroupRepo{},
		WorkerAssignment: newMockAssignmentRepo(),
		ShiftEstimate:    estimates,
	}
}

// ── Mock GroupResolver ──

type mockResolver struct {
	groups map[string][]Group
	errs   map[string]error
	calls  atomic.Int32
}

func newMockResolver() *mockResolver {
	return &mockResolver{groups: make(map[string][]Group), errs: make(map[string]error)}
}

func (m *mockResolver) ResolveGroups(_ context.Context, date time.Time) ([]Group, error) {
	m.calls.Add(1)
	key := FormatDate(date)
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	return m.groups[key], nil
}

// ── Mock AttendanceFetcher ──

type mockFetcher struct {
	mu       sync.Mutex
	events   map[string][]model.AttendanceEvent
	errs     map[string]error
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
	onFetch  func(workerID string) // 非 nil 时在返回前调用
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{events: make(map[string][]model.AttendanceEvent), errs: make(map[string]error)}
}

func (m *mockFetcher) clockIn(workerID string, ts time.Time) {
	m.events[workerID] = append(m.events[workerID], model.AttendanceEvent{WorkerID: workerID, Timestamp: ts, EventType: model.EventClockIn})
}

func (m *mockFetcher) clockOut(workerID string, ts time.Time) {
	m.events[workerID] = append(m.events[workerID], model.AttendanceEvent{WorkerID: workerID, Timestamp: ts, EventType: model.EventClockOut})
}

func (m *mockFetcher) FetchEvents(ctx context.Context, workerID string, _ time.Time) ([]model.AttendanceEvent, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxSeen.Load()
		if n <= cur || m.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if m.onFetch != nil {
		m.onFetch(workerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[workerID]; err != nil {
		return nil, err
	}
	return m.events[workerID], nil
}
