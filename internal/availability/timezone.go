package availability

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/hitoshi/coachcal/internal/model"
)

// LoadLocation はIANAタイムゾーン名を解決する。
// 空文字と"Local"はIANA名ではないため解決できないものとして扱う。
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, name, err)
	}
	return loc, nil
}

// ConvertToTimezone はスロットの開始・終了を指定タイムゾーンで表現し直した新しいスライスを返す。
// 表示用の変換であり、UTC上の瞬間とDurationMinutesは変わらない。
func ConvertToTimezone(slots []model.FreeSlot, tz string) ([]model.FreeSlot, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, newError(KindTimezone, "", err)
	}
	out := make([]model.FreeSlot, len(slots))
	for i, s := range slots {
		out[i] = model.FreeSlot{
			Start:           s.Start.In(loc),
			End:             s.End.In(loc),
			DurationMinutes: s.DurationMinutes,
		}
	}
	return out, nil
}
