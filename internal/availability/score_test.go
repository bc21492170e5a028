package availability

import (
	"testing"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

func TestScoreSlot(t *testing.T) {
	loc := mustLoc(t, "Asia/Tokyo")
	tests := []struct {
		name  string
		start time.Time
		mins  int
		want  int
	}{
		{"火曜10:30 コアタイム", at(loc, 2024, 6, 4, 10, 30), 60, 100 + 30 + 60},
		{"月曜9:00 広い時間帯", at(loc, 2024, 6, 3, 9, 0), 30, 50 + 30 + 30},
		{"木曜14:00 コアタイム外", at(loc, 2024, 6, 6, 14, 0), 45, 50 + 45},
		{"金曜16:00 時間帯加点なし", at(loc, 2024, 6, 7, 16, 0), 90, 90},
		{"土曜13:59 コアタイム", at(loc, 2024, 6, 8, 13, 59), 10, 100 + 10},
		{"水曜8:59 時間帯加点なし", at(loc, 2024, 6, 5, 8, 59), 120, 30 + 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := slot(tt.start, tt.start.Add(time.Duration(tt.mins)*time.Minute))
			if got := ScoreSlot(s, loc); got != tt.want {
				t.Errorf("ScoreSlot() = %d, want %d", got, tt.want)
			}
		})
	}
}

// 時間帯と曜日はスコアリング用タイムゾーンで判定する
func TestScoreSlot_UsesScoringTimezone(t *testing.T) {
	// 2024-06-04 01:00 UTC = 火曜 10:00 JST = 月曜 21:00 EDT
	s := slot(time.Date(2024, 6, 4, 1, 0, 0, 0, time.UTC), time.Date(2024, 6, 4, 2, 0, 0, 0, time.UTC))

	if got := ScoreSlot(s, mustLoc(t, "Asia/Tokyo")); got != 100+30+60 {
		t.Errorf("Asia/Tokyo: got %d, want %d", got, 190)
	}
	if got := ScoreSlot(s, mustLoc(t, "America/New_York")); got != 30+60 {
		t.Errorf("America/New_York: got %d, want %d", got, 90)
	}
}

func TestRankSlots_OrdersByScoreThenStart(t *testing.T) {
	loc := mustLoc(t, "Asia/Tokyo")
	thu10 := slot(at(loc, 2024, 6, 6, 10, 0), at(loc, 2024, 6, 6, 11, 0)) // 160
	thu11 := slot(at(loc, 2024, 6, 6, 11, 0), at(loc, 2024, 6, 6, 12, 0)) // 160
	tue10 := slot(at(loc, 2024, 6, 4, 10, 0), at(loc, 2024, 6, 4, 11, 0)) // 190
	fri17 := slot(at(loc, 2024, 6, 7, 17, 0), at(loc, 2024, 6, 7, 20, 0)) // 180

	got := RankSlots([]model.FreeSlot{thu11, fri17, thu10, tue10}, loc, 0)

	want := []model.FreeSlot{tue10, fri17, thu10, thu11}
	if !sameSlots(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRankSlots_TruncatesToMaxSlots(t *testing.T) {
	loc := mustLoc(t, "Asia/Tokyo")
	var slots []model.FreeSlot
	for d := 3; d <= 7; d++ {
		slots = append(slots, slot(at(loc, 2024, 6, d, 10, 0), at(loc, 2024, 6, d, 11, 0)))
	}

	got := RankSlots(slots, loc, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// 月・火が+30で上位、同点は開始時刻順
	if !got[0].Start.Equal(slots[0].Start) || !got[1].Start.Equal(slots[1].Start) {
		t.Errorf("got %+v", got)
	}
	if len(slots) != 5 {
		t.Error("入力スライスを切り詰めてはならない")
	}
}

func TestRankSlots_Empty(t *testing.T) {
	got := RankSlots(nil, time.UTC, 5)
	if got == nil || len(got) != 0 {
		t.Errorf("got %+v, want empty slice", got)
	}
}
