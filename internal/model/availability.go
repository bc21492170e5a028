// Package model はドメインモデルを定義する。
package model

import "time"

// WorkingHoursConfig はユーザーの稼働時間設定を表す。
// 保存済みの上書き値とシステムデフォルトをフィールド単位でマージした結果であり、常に完全な値を持つ。
type WorkingHoursConfig struct {
	StartHour int            // 稼働開始時刻（0-23）
	EndHour   int            // 稼働終了時刻（0-23, StartHour < EndHour）
	WorkDays  []time.Weekday // 稼働曜日（0=日曜 ... 6=土曜）
	Timezone  string         // IANAタイムゾーン名
}

// IsWorkDay は指定曜日が稼働日かを返す。
func (c WorkingHoursConfig) IsWorkDay(d time.Weekday) bool {
	for _, wd := range c.WorkDays {
		if wd == d {
			return true
		}
	}
	return false
}

// WorkingHoursOverride はストアに保存されたユーザーごとの上書き設定を表す。
// nilのフィールドは未設定としてデフォルト値で補完される。
type WorkingHoursOverride struct {
	UserID    string
	StartHour *int
	EndHour   *int
	WorkDays  []int // nilの場合は未設定
	Timezone  *string
}

// BusyInterval はカレンダーが報告した予定ありの時間帯を表す。
// Start, EndはUTCで、Start < End を満たす。
type BusyInterval struct {
	Start    time.Time
	End      time.Time
	SourceID string // カレンダーIDまたはフィードID
}

// FreeSlot は空き時間帯を表す。
// DurationMinutes は常に (End-Start) の分数（切り捨て）と一致する。
type FreeSlot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// NewFreeSlot はDurationMinutesを導出してFreeSlotを生成する。
// End が Start より前の場合の分数は0とする。
func NewFreeSlot(start, end time.Time) FreeSlot {
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return FreeSlot{Start: start, End: end, DurationMinutes: minutes}
}

// ManualSlot はユーザーが申告した週次の空き枠（ローカル時刻）を表す。
// 1件が60分の空きブロックに対応する。ストアの値は未検証のまま保持する。
type ManualSlot struct {
	Day  int // 曜日（0=日曜 ... 6=土曜）
	Hour int // 開始時刻（0-23）
}

// Valid は曜日と時刻が範囲内かを返す。
func (s ManualSlot) Valid() bool {
	return s.Day >= 0 && s.Day <= 6 && s.Hour >= 0 && s.Hour <= 23
}

// CalendarProvider は外部カレンダーの種別を表す。
type CalendarProvider string

const (
	// CalendarProviderGoogle はfree/busy APIを持つGoogleカレンダー。
	CalendarProviderGoogle CalendarProvider = "google"
	// CalendarProviderICS はICS購読フィード。
	CalendarProviderICS CalendarProvider = "ics"
)

// CalendarConnection はユーザーの外部カレンダー連携情報を表す。
// トークンの取得・更新は認証基盤側の責務であり、ここでは読み取りのみ行う。
type CalendarConnection struct {
	UserID      string
	Provider    CalendarProvider
	CalendarIDs []string
	AccessToken string
	FeedURL     string
	Authorized  bool

	// Location はメンバーの稼働時間のタイムゾーン。保存はせず、取得直前に付与する。
	// ICSのTZIDを持たない日時や終日予定の暦日の解釈に使う。
	Location *time.Location
}

// Usable はカレンダー連携を空き時間の算出に使えるかを返す。
func (c *CalendarConnection) Usable() bool {
	if c == nil || !c.Authorized {
		return false
	}
	switch c.Provider {
	case CalendarProviderGoogle:
		return len(c.CalendarIDs) > 0 && c.AccessToken != ""
	case CalendarProviderICS:
		return c.FeedURL != ""
	default:
		return false
	}
}

// AvailabilityQuery は空き時間検索の条件を表す。範囲は [RangeStart, RangeEnd) のUTC。
type AvailabilityQuery struct {
	RangeStart         time.Time
	RangeEnd           time.Time
	MinDurationMinutes int
}

// SourceType はメンバーの空き時間の取得元を表す。
type SourceType string

const (
	// SourceTypeCalendar は外部カレンダーのbusy情報から算出したことを示す。
	SourceTypeCalendar SourceType = "calendar"
	// SourceTypeManual は手動申告の週次枠から算出したことを示す。
	SourceTypeManual SourceType = "manual"
)

// MemberFailure はグループ検索で除外されたメンバーとその理由を表す。
type MemberFailure struct {
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// GroupAvailabilityResult はグループ共通の空き時間の検索結果を表す。
type GroupAvailabilityResult struct {
	Slots                   []FreeSlot      `json:"slots"`
	TotalFound              int             `json:"total_found"`
	UsersWithCalendarSource int             `json:"users_with_calendar_source"`
	UsersWithManualSource   int             `json:"users_with_manual_source"`
	Errors                  []string        `json:"errors"`
	Failures                []MemberFailure `json:"failures"`
}
