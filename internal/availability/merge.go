package availability

import (
	"sort"

	"github.com/hitoshi/coachcal/internal/model"
)

// MergeSlots は重なる・接する空き時間を結合し、minDurationMinutes 未満の結果を除外する。
// 入力は変更しない。既に結合済みのリストを再度渡しても結果は変わらない。
func MergeSlots(slots []model.FreeSlot, minDurationMinutes int) []model.FreeSlot {
	merged := []model.FreeSlot{}
	if len(slots) == 0 {
		return merged
	}

	sorted := make([]model.FreeSlot, 0, len(slots))
	for _, s := range slots {
		if s.End.After(s.Start) {
			sorted = append(sorted, s)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	minDur := minutes(minDurationMinutes)
	flush := func(acc model.FreeSlot) {
		if s, ok := freeSlotIfLongEnough(acc.Start, acc.End, minDur); ok {
			merged = append(merged, s)
		}
	}

	var acc model.FreeSlot
	for i, s := range sorted {
		if i == 0 {
			acc = s
			continue
		}
		if !s.Start.After(acc.End) {
			acc.End = maxTime(acc.End, s.End)
			continue
		}
		flush(acc)
		acc = s
	}
	if len(sorted) > 0 {
		flush(acc)
	}

	return merged
}
