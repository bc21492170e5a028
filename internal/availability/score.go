package availability

import (
	"sort"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

// ScoreSlot は提案順位づけ用のスコアを返す。
// 時間帯と曜日はlocでの開始時刻で判定する。
//
//	10:00-14:00 開始 +100（それ以外で 9:00-16:00 開始なら +50）
//	月・火・水曜日   +30
//	長さ（分）をそのまま加算
func ScoreSlot(slot model.FreeSlot, loc *time.Location) int {
	local := slot.Start.In(loc)
	score := 0

	switch h := local.Hour(); {
	case h >= 10 && h < 14:
		score += 100
	case h >= 9 && h < 16:
		score += 50
	}

	switch local.Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday:
		score += 30
	}

	return score + slot.DurationMinutes
}

// RankSlots はスロットをスコアの降順に並べ、maxSlots件に切り詰めたコピーを返す。
// 同点のスロットは開始時刻の昇順となる。maxSlotsが0以下の場合は切り詰めない。
func RankSlots(slots []model.FreeSlot, loc *time.Location, maxSlots int) []model.FreeSlot {
	type scored struct {
		slot  model.FreeSlot
		score int
	}

	sorted := make([]model.FreeSlot, len(slots))
	copy(sorted, slots)
	sortByStart(sorted)

	items := make([]scored, len(sorted))
	for i, s := range sorted {
		items[i] = scored{slot: s, score: ScoreSlot(s, loc)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})

	if maxSlots > 0 && len(items) > maxSlots {
		items = items[:maxSlots]
	}
	ranked := make([]model.FreeSlot, len(items))
	for i, it := range items {
		ranked[i] = it.slot
	}
	return ranked
}
