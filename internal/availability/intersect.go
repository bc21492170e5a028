package availability

import (
	"sort"

	"github.com/hitoshi/coachcal/internal/model"
)

// IntersectSlots は2つの空き時間リストの重なりのうち minDurationMinutes 以上のものを返す。
// 結果は開始時刻（同じ場合は終了時刻）の昇順。
func IntersectSlots(a, b []model.FreeSlot, minDurationMinutes int) []model.FreeSlot {
	minDur := minutes(minDurationMinutes)
	out := []model.FreeSlot{}
	for _, x := range a {
		for _, y := range b {
			start := maxTime(x.Start, y.Start)
			end := minTime(x.End, y.End)
			if s, ok := freeSlotIfLongEnough(start, end, minDur); ok {
				out = append(out, s)
			}
		}
	}
	sortByStart(out)
	return out
}

// IntersectAll は各メンバーの空き時間リストを左から順に畳み込み、全員に共通する空き時間を返す。
// リストが0件、または途中で共通部分が空になった場合は空スライスを返す。
// 畳み込みの順序によらず結果の集合は同じになる。
func IntersectAll(lists [][]model.FreeSlot, minDurationMinutes int) []model.FreeSlot {
	if len(lists) == 0 {
		return []model.FreeSlot{}
	}

	minDur := minutes(minDurationMinutes)
	acc := make([]model.FreeSlot, 0, len(lists[0]))
	for _, s := range lists[0] {
		if slot, ok := freeSlotIfLongEnough(s.Start, s.End, minDur); ok {
			acc = append(acc, slot)
		}
	}
	sortByStart(acc)

	for _, next := range lists[1:] {
		if len(acc) == 0 {
			break
		}
		acc = IntersectSlots(acc, next, minDurationMinutes)
	}
	return acc
}

func sortByStart(slots []model.FreeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].End.Before(slots[j].End)
		}
		return slots[i].Start.Before(slots[j].Start)
	})
}
