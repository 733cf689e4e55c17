package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/Teskh/production-sub001/config"
)

// DayClass 日期分类
type DayClass int

const (
	DayWorking DayClass = iota
	DayExcluded
)

func (c DayClass) String() string {
	if c == DayExcluded {
		return "excluded"
	}
	return "working"
}

// CalendarConfig 工作日历配置（构造 CalendarPolicy 时显式传入）
type CalendarConfig struct {
	Location         *time.Location
	ExcludedWeekdays []time.Weekday
	Holidays         []time.Time // 按日期（年月日）比较，忽略时分秒
	DefaultDuration  time.Duration
	RoleDurations    map[string]time.Duration
}

// CalendarPolicy 工作日判定与标准班次时长
// 构造后只读，可被多个 goroutine 并发使用
type CalendarPolicy struct {
	loc              *time.Location
	excludedWeekdays map[time.Weekday]bool
	holidays         map[string]bool
	defaultDuration  time.Duration
	roleDurations    map[string]time.Duration
}

// NewCalendarPolicy 根据配置创建日历策略
func NewCalendarPolicy(cfg CalendarConfig) *CalendarPolicy {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	p := &CalendarPolicy{
		loc:              loc,
		excludedWeekdays: make(map[time.Weekday]bool, len(cfg.ExcludedWeekdays)),
		holidays:         make(map[string]bool, len(cfg.Holidays)),
		defaultDuration:  cfg.DefaultDuration,
		roleDurations:    make(map[string]time.Duration, len(cfg.RoleDurations)),
	}
	for _, wd := range cfg.ExcludedWeekdays {
		p.excludedWeekdays[wd] = true
	}
	for _, h := range cfg.Holidays {
		p.holidays[dateKey(h)] = true
	}
	for role, d := range cfg.RoleDurations {
		p.roleDurations[normalizeRole(role)] = d
	}
	return p
}

// Classify 判定日期是否为工作日
func (p *CalendarPolicy) Classify(date time.Time) DayClass {
	d := civilDate(date)
	if p.excludedWeekdays[d.Weekday()] || p.holidays[dateKey(d)] {
		return DayExcluded
	}
	return DayWorking
}

// StandardDuration 工位角色的标准班次时长；未配置的角色使用默认值
func (p *CalendarPolicy) StandardDuration(role string) time.Duration {
	if d, ok := p.roleDurations[normalizeRole(role)]; ok {
		return d
	}
	return p.defaultDuration
}

// Location 班次所在时区
func (p *CalendarPolicy) Location() *time.Location {
	return p.loc
}

// DayBounds 日期在班次时区内的 [当日零点, 次日零点)
func (p *CalendarPolicy) DayBounds(date time.Time) (time.Time, time.Time) {
	d := civilDate(date)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc)
	end := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, p.loc)
	return start, end
}

// Today 班次时区内的当前日期
func (p *CalendarPolicy) Today(now time.Time) time.Time {
	return civilDate(now.In(p.loc))
}

// BuildCalendarConfig 由应用配置构建 CalendarConfig
// extraHolidays 通常来自节假日 ICS 文件
func BuildCalendarConfig(cfg *config.ShiftConfig, extraHolidays []time.Time) (CalendarConfig, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return CalendarConfig{}, fmt.Errorf("无效的时区 %q: %w", cfg.Timezone, err)
	}

	weekdays := make([]time.Weekday, 0, len(cfg.ExcludedWeekdays))
	for _, name := range cfg.ExcludedWeekdays {
		wd, err := parseWeekday(name)
		if err != nil {
			return CalendarConfig{}, err
		}
		weekdays = append(weekdays, wd)
	}

	holidays := make([]time.Time, 0, len(cfg.Holidays)+len(extraHolidays))
	for _, s := range cfg.Holidays {
		d, err := ParseDate(s)
		if err != nil {
			return CalendarConfig{}, fmt.Errorf("无效的节假日 %q: %w", s, err)
		}
		holidays = append(holidays, d)
	}
	holidays = append(holidays, extraHolidays...)

	roles := make(map[string]time.Duration, len(cfg.RoleDurations))
	for role, minutes := range cfg.RoleDurations {
		roles[role] = time.Duration(minutes) * time.Minute
	}

	return CalendarConfig{
		Location:         loc,
		ExcludedWeekdays: weekdays,
		Holidays:         holidays,
		DefaultDuration:  time.Duration(cfg.DefaultDurationMinutes) * time.Minute,
		RoleDurations:    roles,
	}, nil
}

// ── 日期辅助函数 ──

const dateLayout = "2006-01-02"

// ParseDate 解析 YYYY-MM-DD 为日期值（UTC 零点表示）
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatDate 日期值格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// civilDate 取 t 自身时区下的年月日，统一以 UTC 零点表示
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.Format(dateLayout)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func parseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("无效的星期 %q", name)
}
