package availability

import (
	"sort"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

// CalculateFreeSlots は稼働時間からbusy区間を差し引いた空き時間を日ごとに算出する。
//
// 日の境界はlocのカレンダー日付で決め、各日の稼働枠は time.Date で組み立てるため
// 夏時間の切り替え日も正しい長さになる。稼働枠は [q.RangeStart, q.RangeEnd) に切り詰め、
// q.MinDurationMinutes 未満の区間と長さ0の区間は出力しない。
// 結果は開始時刻の昇順で、UTCで表現される。
func CalculateFreeSlots(busy []model.BusyInterval, wh model.WorkingHoursConfig, loc *time.Location, q model.AvailabilityQuery) []model.FreeSlot {
	slots := []model.FreeSlot{}
	if !q.RangeStart.Before(q.RangeEnd) {
		return slots
	}

	sorted := sortedBusy(busy)
	minDur := minutes(q.MinDurationMinutes)

	first := q.RangeStart.In(loc)
	y, m, d := first.Date()
	for i := 0; ; i++ {
		dayStart := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !dayStart.Before(q.RangeEnd) {
			break
		}
		if !wh.IsWorkDay(dayStart.Weekday()) {
			continue
		}

		winStart := time.Date(y, m, d+i, wh.StartHour, 0, 0, 0, loc)
		winEnd := time.Date(y, m, d+i, wh.EndHour, 0, 0, 0, loc)
		winStart = maxTime(winStart, q.RangeStart)
		winEnd = minTime(winEnd, q.RangeEnd)
		if !winStart.Before(winEnd) {
			continue
		}

		slots = append(slots, gapsInWindow(sorted, winStart, winEnd, minDur)...)
	}

	return slots
}

// gapsInWindow はカーソルを稼働枠の開始から進め、busy区間の隙間を空き時間として返す。
// busyは開始時刻の昇順であること。
func gapsInWindow(busy []model.BusyInterval, winStart, winEnd time.Time, minDur time.Duration) []model.FreeSlot {
	var out []model.FreeSlot
	cursor := winStart
	for _, b := range busy {
		if !b.End.After(winStart) {
			continue
		}
		if !b.Start.Before(winEnd) {
			break
		}
		if b.Start.After(cursor) {
			if s, ok := freeSlotIfLongEnough(cursor, b.Start, minDur); ok {
				out = append(out, s)
			}
		}
		cursor = maxTime(cursor, b.End)
		if !cursor.Before(winEnd) {
			return out
		}
	}
	if s, ok := freeSlotIfLongEnough(cursor, winEnd, minDur); ok {
		out = append(out, s)
	}
	return out
}

// sortedBusy は不正な区間（End <= Start）を除き、開始時刻でソートしたコピーを返す。
func sortedBusy(busy []model.BusyInterval) []model.BusyInterval {
	out := make([]model.BusyInterval, 0, len(busy))
	for _, b := range busy {
		if b.End.After(b.Start) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func freeSlotIfLongEnough(start, end time.Time, minDur time.Duration) (model.FreeSlot, bool) {
	dur := end.Sub(start)
	if dur <= 0 || dur < minDur {
		return model.FreeSlot{}, false
	}
	return model.NewFreeSlot(start.UTC(), end.UTC()), true
}

func minutes(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Minute
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
