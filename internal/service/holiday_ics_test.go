package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func icsCalendar(events ...string) string {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//factory//holidays//EN"}
	for _, e := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, strings.Split(e, "\n")...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func formatDates(ds []time.Time) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, FormatDate(d))
	}
	return out
}

func TestParseHolidayICS_AllDayAndYearly(t *testing.T) {
	content := icsCalendar(
		"UID:new-year\nSUMMARY:Año Nuevo\nDTSTART;VALUE=DATE:20260101\nDTEND;VALUE=DATE:20260102\nRRULE:FREQ=YEARLY;COUNT=3",
		"UID:carnival\nSUMMARY:Carnaval\nDTSTART;VALUE=DATE:20260216\nDTEND;VALUE=DATE:20260218",
	)

	days, err := ParseHolidayICS(strings.NewReader(content), time.UTC)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"2026-01-01", "2026-02-16", "2026-02-17", "2027-01-01", "2028-01-01"},
		formatDates(days),
	)
}

func TestParseHolidayICS_NoEndAndDuplicates(t *testing.T) {
	content := icsCalendar(
		"UID:a\nDTSTART;VALUE=DATE:20260501",
		"UID:b\nDTSTART;VALUE=DATE:20260501",
	)

	days, err := ParseHolidayICS(strings.NewReader(content), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-01"}, formatDates(days))
}

func TestParseHolidayICS_UTCDateTimeUsesShiftZone(t *testing.T) {
	// 2026-09-18 02:00Z 在 UTC-4 为 09-17 22:00
	loc := time.FixedZone("UTC-4", -4*60*60)
	content := icsCalendar("UID:x\nDTSTART:20260918T020000Z")

	days, err := ParseHolidayICS(strings.NewReader(content), loc)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-09-17"}, formatDates(days))
}

func TestParseHolidayICS_YearlyUntil(t *testing.T) {
	content := icsCalendar("UID:x\nDTSTART;VALUE=DATE:20260618\nRRULE:FREQ=YEARLY;UNTIL=20280101")

	days, err := ParseHolidayICS(strings.NewReader(content), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-06-18", "2027-06-18"}, formatDates(days))
}

func TestParseHolidayICS_OpenEndedYearlyReachesCurrentYear(t *testing.T) {
	content := icsCalendar("UID:new-year\nDTSTART;VALUE=DATE:20000101\nDTEND;VALUE=DATE:20000102\nRRULE:FREQ=YEARLY")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	days, err := parseHolidayICS(strings.NewReader(content), time.UTC, now)
	require.NoError(t, err)

	got := formatDates(days)
	assert.Equal(t, "2000-01-01", got[0])
	assert.Contains(t, got, "2026-01-01")
	assert.Equal(t, "2031-01-01", got[len(got)-1])
	assert.Len(t, got, 32)

	cal := newTestCalendar(time.UTC, days...)
	assert.Equal(t, DayExcluded, cal.Classify(mustDate(t, "2026-01-01")))
	assert.Equal(t, DayWorking, cal.Classify(mustDate(t, "2026-01-02")))
}

func TestParseHolidayICS_OpenEndedYearlyUsesClock(t *testing.T) {
	content := icsCalendar("UID:x\nDTSTART;VALUE=DATE:20000501\nRRULE:FREQ=YEARLY")

	days, err := ParseHolidayICS(strings.NewReader(content), time.UTC)
	require.NoError(t, err)

	thisYear := fmt.Sprintf("%d-05-01", time.Now().Year())
	assert.Contains(t, formatDates(days), thisYear)
}

func TestParseHolidayICS_CountNotLimitedByHorizon(t *testing.T) {
	content := icsCalendar("UID:x\nDTSTART;VALUE=DATE:20000101\nRRULE:FREQ=YEARLY;INTERVAL=2;COUNT=30")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	days, err := parseHolidayICS(strings.NewReader(content), time.UTC, now)
	require.NoError(t, err)
	require.Len(t, days, 30)
	assert.Equal(t, "2058-01-01", FormatDate(days[29]))
}

func TestParseHolidayICS_FutureStartWithoutBound(t *testing.T) {
	content := icsCalendar("UID:x\nDTSTART;VALUE=DATE:20400101\nRRULE:FREQ=YEARLY")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	days, err := parseHolidayICS(strings.NewReader(content), time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"2040-01-01"}, formatDates(days))
}

func TestParseRRule(t *testing.T) {
	r := parseRRule("FREQ=YEARLY;INTERVAL=2;COUNT=4;UNTIL=20300101T000000Z")
	assert.Equal(t, "YEARLY", r.freq)
	assert.Equal(t, 2, r.interval)
	assert.Equal(t, 4, r.count)
	assert.Equal(t, 2030, r.until.Year())
}

func TestLoadHolidayICS(t *testing.T) {
	days, err := LoadHolidayICS("", time.UTC)
	require.NoError(t, err)
	assert.Empty(t, days)

	_, err = LoadHolidayICS(filepath.Join(t.TempDir(), "missing.ics"), time.UTC)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "holidays.ics")
	require.NoError(t, os.WriteFile(path, []byte(icsCalendar("UID:x\nDTSTART;VALUE=DATE:20261225")), 0o600))
	days, err = LoadHolidayICS(path, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-12-25"}, formatDates(days))
}
