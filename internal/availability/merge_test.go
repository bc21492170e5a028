package availability

import (
	"math/rand"
	"testing"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

var base = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// m は base からの分数でスロットを作る。
func m(startMin, endMin int) model.FreeSlot {
	return slot(base.Add(time.Duration(startMin)*time.Minute), base.Add(time.Duration(endMin)*time.Minute))
}

func TestMergeSlots(t *testing.T) {
	tests := []struct {
		name string
		in   []model.FreeSlot
		min  int
		want []model.FreeSlot
	}{
		{
			name: "空入力",
			in:   nil,
			want: []model.FreeSlot{},
		},
		{
			name: "重なる区間を結合",
			in:   []model.FreeSlot{m(0, 60), m(30, 90)},
			want: []model.FreeSlot{m(0, 90)},
		},
		{
			name: "接する区間も結合",
			in:   []model.FreeSlot{m(0, 60), m(60, 120)},
			want: []model.FreeSlot{m(0, 120)},
		},
		{
			name: "内包される区間",
			in:   []model.FreeSlot{m(0, 120), m(30, 60)},
			want: []model.FreeSlot{m(0, 120)},
		},
		{
			name: "離れた区間はそのまま",
			in:   []model.FreeSlot{m(0, 60), m(61, 120)},
			want: []model.FreeSlot{m(0, 60), m(61, 120)},
		},
		{
			name: "未ソートの入力",
			in:   []model.FreeSlot{m(200, 260), m(0, 60), m(50, 100)},
			want: []model.FreeSlot{m(0, 100), m(200, 260)},
		},
		{
			name: "結合後に最小時間未満を除外",
			in:   []model.FreeSlot{m(0, 20), m(20, 40), m(100, 120)},
			min:  30,
			want: []model.FreeSlot{m(0, 40)},
		},
		{
			name: "長さ0の区間は除外",
			in:   []model.FreeSlot{m(10, 10)},
			want: []model.FreeSlot{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeSlots(tt.in, tt.min)
			if !sameSlots(got, tt.want) {
				t.Errorf("MergeSlots() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeSlots_DoesNotModifyInput(t *testing.T) {
	in := []model.FreeSlot{m(60, 120), m(0, 90)}
	MergeSlots(in, 0)
	if !sameSlots(in, []model.FreeSlot{m(60, 120), m(0, 90)}) {
		t.Errorf("入力スライスが変更された: %+v", in)
	}
}

// merge(merge(L)) == merge(L)
func TestMergeSlots_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		in := randomSlots(rng, rng.Intn(12), 24*60)
		min := rng.Intn(90)

		once := MergeSlots(in, min)
		twice := MergeSlots(once, min)
		if !sameSlots(once, twice) {
			t.Fatalf("iter %d: merge が冪等でない\nonce=%+v\ntwice=%+v", iter, once, twice)
		}
		for i := 1; i < len(once); i++ {
			if !once[i-1].End.Before(once[i].Start) {
				t.Fatalf("iter %d: 結合後に重なる・接する区間が残っている: %+v", iter, once)
			}
		}
	}
}

// randomSlots は [0, horizon) 分の範囲にランダムなスロットをn件生成する。
func randomSlots(rng *rand.Rand, n, horizon int) []model.FreeSlot {
	out := make([]model.FreeSlot, 0, n)
	for i := 0; i < n; i++ {
		start := rng.Intn(horizon - 1)
		end := start + 1 + rng.Intn(horizon-start-1)
		out = append(out, m(start, end))
	}
	return out
}
