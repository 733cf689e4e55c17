package service

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ── 节假日 ICS 解析 ──────────────────────────────────────────
//
// 职责：将工厂节假日日历 (RFC 5545) 展开为排除日期列表，启动时并入 CalendarPolicy。
//
//   - DTSTART/DTEND 覆盖的每一天都视为排除日（全天事件 DTEND 为开区间）
//   - 无 DTEND 的事件仅排除 DTSTART 当天
//   - RRULE 仅支持 FREQ=YEARLY（年度固定节日），按 COUNT/UNTIL 展开；
//     无 COUNT/UNTIL 时展开到当前年份之后 holidayHorizonYears 年
// ─────────────────────────────────────────────────────────────

const (
	holidayMaxFileSize    = 2 * 1024 * 1024 // 2MB
	holidayHorizonYears   = 5
	holidayMaxOccurrences = 500
	holidayMaxSpanDays    = 60
)

// LoadHolidayICS 从文件加载节假日；path 为空时返回空列表
func LoadHolidayICS(path string, loc *time.Location) ([]time.Time, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开节假日文件失败: %w", err)
	}
	defer f.Close()
	return ParseHolidayICS(io.LimitReader(f, holidayMaxFileSize), loc)
}

// ParseHolidayICS 解析 ICS 内容为排除日期（已去重、升序）
func ParseHolidayICS(reader io.Reader, loc *time.Location) ([]time.Time, error) {
	return parseHolidayICS(reader, loc, time.Now())
}

func parseHolidayICS(reader io.Reader, loc *time.Location, now time.Time) ([]time.Time, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	// 无界的年度规则展开到该日（含）
	horizon := time.Date(now.In(loc).Year()+holidayHorizonYears, time.December, 31, 0, 0, 0, 0, time.UTC)

	seen := make(map[string]time.Time)
	for _, evt := range cal.Events() {
		for _, d := range expandHolidayEvent(evt, loc, horizon) {
			seen[dateKey(d)] = d
		}
	}

	result := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// expandHolidayEvent 展开单个 VEVENT 覆盖的日期
func expandHolidayEvent(evt *ics.VEvent, loc *time.Location, horizon time.Time) []time.Time {
	start, allDay, err := parseICSDate(evt, ics.ComponentPropertyDtStart, loc)
	if err != nil {
		return nil
	}

	spanDays := 1
	if end, _, err := parseICSDate(evt, ics.ComponentPropertyDtEnd, loc); err == nil {
		days := int(civilDate(end).Sub(civilDate(start)).Hours() / 24)
		if !allDay && !end.Equal(time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())) {
			days++ // 带时间的事件结束日当天也算
		}
		if days > spanDays {
			spanDays = days
		}
	}
	if spanDays > holidayMaxSpanDays {
		spanDays = holidayMaxSpanDays
	}

	occurrences := []time.Time{civilDate(start)}
	if prop := evt.GetProperty(ics.ComponentPropertyRrule); prop != nil {
		occurrences = expandYearly(civilDate(start), parseRRule(prop.Value), horizon)
	}

	var days []time.Time
	for _, occ := range occurrences {
		for i := 0; i < spanDays; i++ {
			days = append(days, occ.AddDate(0, 0, i))
		}
	}
	return days
}

// expandYearly 按 FREQ=YEARLY 展开；其他频率仅保留首次
// COUNT 与 UNTIL 优先；两者都没有时展开到 horizon
func expandYearly(first time.Time, rule rruleParams, horizon time.Time) []time.Time {
	if rule.freq != "YEARLY" {
		return []time.Time{first}
	}
	interval := rule.interval
	if interval < 1 {
		interval = 1
	}
	bounded := rule.count > 0 || !rule.until.IsZero()

	var result []time.Time
	for i := 0; i < holidayMaxOccurrences; i++ {
		if rule.count > 0 && i >= rule.count {
			break
		}
		occ := first.AddDate(i*interval, 0, 0)
		if !rule.until.IsZero() && occ.After(civilDate(rule.until)) {
			break
		}
		if !bounded && occ.After(horizon) && i > 0 {
			break
		}
		result = append(result, occ)
	}
	return result
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=YEARLY;COUNT=5）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			fmt.Sscanf(kv[1], "%d", &r.interval)
		case "COUNT":
			fmt.Sscanf(kv[1], "%d", &r.count)
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		}
	}
	return r
}

// parseICSDate 解析日期/日期时间属性，返回班次时区内的时间与是否为全天值
func parseICSDate(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	val := strings.TrimSpace(prop.Value)

	if t, err := time.Parse("20060102", val); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t.In(loc), false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		tz := loc
		for k, v := range prop.ICalParameters {
			if strings.ToUpper(k) == "TZID" && len(v) > 0 {
				if tzLoc, err := time.LoadLocation(v[0]); err == nil {
					tz = tzLoc
				}
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tz).In(loc), false, nil
	}
	return time.Time{}, false, fmt.Errorf("无法解析日期: %s", val)
}
