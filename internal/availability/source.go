package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

// CalendarClient は外部カレンダーからbusy区間を取得するクライアント。
// 返す区間はUTCで、範囲外にはみ出していてもよい（切り詰めは算出側で行う）。
type CalendarClient interface {
	FetchBusy(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error)
}

// Source はメンバー1人分の空き時間をUTC範囲について算出する。
// 取得元（カレンダーか手動申告か）の違いはこのインターフェースの内側に閉じる。
type Source interface {
	Type() model.SourceType
	FreeSlots(ctx context.Context, q model.AvailabilityQuery, wh model.WorkingHoursConfig) ([]model.FreeSlot, error)
}

// CalendarSource は外部カレンダーのbusy区間と稼働時間から空き時間を算出する。
type CalendarSource struct {
	userID  string
	conn    *model.CalendarConnection
	client  CalendarClient
	timeout time.Duration
}

// NewCalendarSource はCalendarSourceを生成する。timeoutが0以下の場合は取得時間を制限しない。
func NewCalendarSource(userID string, conn *model.CalendarConnection, client CalendarClient, timeout time.Duration) *CalendarSource {
	return &CalendarSource{userID: userID, conn: conn, client: client, timeout: timeout}
}

// Type は取得元種別を返す。
func (s *CalendarSource) Type() model.SourceType { return model.SourceTypeCalendar }

// FreeSlots はbusy区間を取得し、稼働時間から差し引いた空き時間を返す。
// タイムゾーンを先に解決し、解決できない場合は外部呼び出しを行わない。
func (s *CalendarSource) FreeSlots(ctx context.Context, q model.AvailabilityQuery, wh model.WorkingHoursConfig) ([]model.FreeSlot, error) {
	loc, err := LoadLocation(wh.Timezone)
	if err != nil {
		return nil, newError(KindTimezone, s.userID, err)
	}

	fetchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// 並行する取得で共有しないよう、連携はコピーしてからタイムゾーンを付与する
	conn := *s.conn
	conn.Location = loc

	busy, err := s.client.FetchBusy(fetchCtx, &conn, q.RangeStart, q.RangeEnd)
	if err != nil {
		return nil, newError(KindExternalProvider, s.userID, fmt.Errorf("busy区間の取得に失敗: %w", err))
	}

	return MergeSlots(CalculateFreeSlots(busy, wh, loc, q), q.MinDurationMinutes), nil
}

// ManualSource は手動申告の週次枠（ローカル時刻の曜日・時刻）から空き時間を直接列挙する。
// busy区間ではなく空き時間そのものを表すため、稼働時間は枠の展開に使うタイムゾーンのみ参照する。
type ManualSource struct {
	userID string
	slots  []model.ManualSlot
	logger *slog.Logger
}

// NewManualSource はManualSourceを生成する。
func NewManualSource(userID string, slots []model.ManualSlot, logger *slog.Logger) *ManualSource {
	return &ManualSource{userID: userID, slots: slots, logger: logger}
}

// Type は取得元種別を返す。
func (s *ManualSource) Type() model.SourceType { return model.SourceTypeManual }

// FreeSlots は範囲内の各ローカル日付について、曜日が一致する申告枠を60分の空き時間に展開する。
// 範囲と重なる枠は範囲に切り詰めたうえで結合し、minDurationMinutes未満を除外する。
// 曜日・時刻が範囲外の申告は個別に読み飛ばす。
func (s *ManualSource) FreeSlots(ctx context.Context, q model.AvailabilityQuery, wh model.WorkingHoursConfig) ([]model.FreeSlot, error) {
	loc, err := LoadLocation(wh.Timezone)
	if err != nil {
		return nil, newError(KindTimezone, s.userID, err)
	}

	hoursByDay := s.validHoursByDay()
	if !q.RangeStart.Before(q.RangeEnd) {
		return []model.FreeSlot{}, nil
	}

	var blocks []model.FreeSlot
	first := q.RangeStart.In(loc)
	y, m, d := first.Date()
	for i := 0; ; i++ {
		dayStart := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if !dayStart.Before(q.RangeEnd) {
			break
		}
		for _, hour := range hoursByDay[dayStart.Weekday()] {
			start := time.Date(y, m, d+i, hour, 0, 0, 0, loc)
			end := start.Add(time.Hour)
			start = maxTime(start, q.RangeStart)
			end = minTime(end, q.RangeEnd)
			if start.Before(end) {
				blocks = append(blocks, model.NewFreeSlot(start.UTC(), end.UTC()))
			}
		}
	}

	return MergeSlots(blocks, q.MinDurationMinutes), nil
}

// validHoursByDay は妥当な申告を曜日ごとの時刻リストにまとめる。重複は1つにまとめる。
func (s *ManualSource) validHoursByDay() map[time.Weekday][]int {
	byDay := make(map[time.Weekday][]int)
	seen := make(map[model.ManualSlot]bool)
	for _, slot := range s.slots {
		if !slot.Valid() {
			s.logger.Warn("不正な手動申告枠を除外しました",
				slog.String("user_id", s.userID),
				slog.Int("day", slot.Day),
				slog.Int("hour", slot.Hour),
			)
			continue
		}
		if seen[slot] {
			continue
		}
		seen[slot] = true
		wd := time.Weekday(slot.Day)
		byDay[wd] = append(byDay[wd], slot.Hour)
	}
	return byDay
}

var (
	_ Source = (*CalendarSource)(nil)
	_ Source = (*ManualSource)(nil)
)
