package calendar

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/hitoshi/coachcal/internal/model"
)

// maxOccurrencesPerEvent は1つの繰り返し予定から展開する件数の上限。
const maxOccurrencesPerEvent = 5000

// icsEvent はbusy区間の算出に必要なVEVENTの情報。
type icsEvent struct {
	uid          string
	start        time.Time
	end          time.Time
	allDay       bool
	// duration はDTENDの代わりにDURATIONが指定された予定の長さ。繰り返しの各回に適用する。
	duration     *icsDuration
	rrule        string
	exDates      []time.Time
	recurrenceID *time.Time
	// free はTRANSP:TRANSPARENTまたはSTATUS:CANCELLEDの予定。busyには含めない。
	free bool
}

// parseICSBusy はICSを読み取り、[timeMin, timeMax) に重なるbusy区間をUTCで返す。
// memberLocはX-WR-TIMEZONEがないフィードでフローティング時刻と終日予定を解釈するタイムゾーン（nilならUTC）。
// 解釈できないVEVENTは警告ログを出して読み飛ばす。
func parseICSBusy(r io.Reader, timeMin, timeMax time.Time, memberLoc *time.Location, logger *slog.Logger) ([]model.BusyInterval, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, err
	}

	floating := calendarLocation(cal, memberLoc)
	events := make([]icsEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve, floating)
		if err != nil {
			logger.Warn("解釈できないVEVENTを読み飛ばしました", slog.String("error", err.Error()))
			continue
		}
		events = append(events, ev)
	}

	return expandBusy(events, timeMin, timeMax, logger), nil
}

// calendarLocation はTZIDを持たない日時（フローティング）の解釈に使うタイムゾーンを返す。
// X-WR-TIMEZONEが解決できればそれを、なければfallback（nilならUTC）を使う。
func calendarLocation(cal *ical.Calendar, fallback *time.Location) *time.Location {
	for _, p := range cal.CalendarProperties {
		if !strings.EqualFold(p.IANAToken, "X-WR-TIMEZONE") {
			continue
		}
		if loc, err := time.LoadLocation(strings.TrimSpace(p.Value)); err == nil {
			return loc
		}
	}
	if fallback != nil {
		return fallback
	}
	return time.UTC
}

func parseEvent(ve *ical.VEvent, floating *time.Location) (icsEvent, error) {
	var ev icsEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("DTSTARTがありません")
	}
	start, allDay, err := parseTimeProperty(dtStart, floating)
	if err != nil {
		return ev, fmt.Errorf("DTSTARTの解釈に失敗: %w", err)
	}
	ev.start = start
	ev.allDay = allDay

	// DTENDもDURATIONもない場合、終日予定は1日、時刻指定の予定は長さ0として扱う
	ev.end = start
	if allDay {
		ev.end = start.AddDate(0, 0, 1)
	}
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, _, err := parseTimeProperty(dtEnd, floating)
		if err != nil {
			return ev, fmt.Errorf("DTENDの解釈に失敗: %w", err)
		}
		ev.end = end
	} else if p := ve.GetProperty(ical.ComponentProperty("DURATION")); p != nil {
		d, err := parseICSDuration(p.Value)
		if err != nil {
			return ev, fmt.Errorf("DURATIONの解釈に失敗: %w", err)
		}
		ev.duration = &d
		ev.end = d.addTo(start)
	}

	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED") {
		ev.free = true
	}
	if p := ve.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(strings.TrimSpace(p.Value), "TRANSPARENT") {
		ev.free = true
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.rrule = strings.TrimSpace(p.Value)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := propertyLocation(p, floating)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := parseICSTime(part, loc); err == nil {
				ev.exDates = append(ev.exDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		rid, _, err := parseTimeProperty(p, floating)
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-IDの解釈に失敗: %w", err)
		}
		ev.recurrenceID = &rid
	}

	return ev, nil
}

// parseTimeProperty はTZIDパラメータを考慮して日時プロパティを解釈する。
// 2つ目の戻り値は日付のみ（終日）の値かどうか。
func parseTimeProperty(p *ical.IANAProperty, floating *time.Location) (time.Time, bool, error) {
	return parseICSTime(p.Value, propertyLocation(p, floating))
}

// propertyLocation はプロパティのTZIDを解決する。解決できない場合はfloatingを返す。
func propertyLocation(p *ical.IANAProperty, floating *time.Location) *time.Location {
	if tzids, ok := p.ICalParameters["TZID"]; ok && len(tzids) > 0 {
		if loc, err := time.LoadLocation(strings.Trim(tzids[0], `"`)); err == nil {
			return loc
		}
	}
	return floating
}

// parseICSTime はICSの DATE / DATE-TIME 形式の値を解釈する。
func parseICSTime(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("空の日時")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

// expandBusy は予定を展開し、範囲に重なるbusy区間を返す。
// RECURRENCE-IDを持つ予定は、対応する繰り返しの回を置き換える。
func expandBusy(events []icsEvent, timeMin, timeMax time.Time, logger *slog.Logger) []model.BusyInterval {
	overridden := make(map[string]map[int64]bool)
	for _, ev := range events {
		if ev.recurrenceID == nil {
			continue
		}
		if overridden[ev.uid] == nil {
			overridden[ev.uid] = make(map[int64]bool)
		}
		overridden[ev.uid][ev.recurrenceID.Unix()] = true
	}

	busy := make([]model.BusyInterval, 0)
	add := func(ev icsEvent, start, end time.Time) {
		if !end.After(timeMin) || !start.Before(timeMax) || !end.After(start) {
			return
		}
		busy = append(busy, model.BusyInterval{Start: start.UTC(), End: end.UTC(), SourceID: ev.uid})
	}

	for _, ev := range events {
		if ev.free {
			continue
		}
		if ev.rrule == "" || ev.recurrenceID != nil {
			add(ev, ev.start, ev.end)
			continue
		}

		r, err := rrule.StrToRRule(ev.rrule)
		if err != nil {
			logger.Warn("RRULEの解釈に失敗したため予定を読み飛ばしました",
				slog.String("uid", ev.uid),
				slog.String("rrule", ev.rrule),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.DTStart(ev.start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.exDates {
			set.ExDate(ex.In(ev.start.Location()))
		}

		dur := ev.end.Sub(ev.start)
		days := daySpan(ev.start, ev.end)
		// 範囲の開始より前に始まり範囲内まで続く回も含める
		occurrences := set.Between(timeMin.Add(-dur).In(ev.start.Location()), timeMax.In(ev.start.Location()), true)
		if len(occurrences) > maxOccurrencesPerEvent {
			logger.Warn("繰り返し予定の展開件数が上限に達しました",
				slog.String("uid", ev.uid),
				slog.Int("cap", maxOccurrencesPerEvent),
			)
			occurrences = occurrences[:maxOccurrencesPerEvent]
		}

		for _, occStart := range occurrences {
			if overridden[ev.uid][occStart.Unix()] {
				continue
			}
			occEnd := occStart.Add(dur)
			switch {
			case ev.duration != nil:
				occEnd = ev.duration.addTo(occStart)
			case ev.allDay:
				occEnd = occStart.AddDate(0, 0, days)
			}
			add(ev, occStart, occEnd)
		}
	}

	return busy
}

// daySpan は終日予定が何日にわたるかを暦日で返す。
func daySpan(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if n := int(e.Sub(s).Hours() / 24); n > 0 {
		return n
	}
	return 1
}

// icsDuration はRFC 5545のDURATION値。
// 日・週は暦日（DSTをまたいでも同じ壁時計時刻）、時・分・秒は経過時間として扱う。
type icsDuration struct {
	days  int
	clock time.Duration
}

func (d icsDuration) addTo(t time.Time) time.Time {
	return t.AddDate(0, 0, d.days).Add(d.clock)
}

// parseICSDuration は "PT1H30M", "P1D", "P2W", "P1DT12H" のような値を解釈する。
// 負の長さはbusy区間にならないためエラーとする。
func parseICSDuration(v string) (icsDuration, error) {
	var d icsDuration
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "+")
	if strings.HasPrefix(v, "-") {
		return d, fmt.Errorf("負のDURATIONは扱えません: %q", v)
	}
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return d, fmt.Errorf("DURATIONの形式が不正です: %q", v)
	}

	inTime := false
	num := 0
	digits := 0
	for _, c := range v[1:] {
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int(c-'0')
			digits++
			continue
		case c == 'T':
			if inTime || digits > 0 {
				return d, fmt.Errorf("DURATIONの形式が不正です: %q", v)
			}
			inTime = true
			continue
		}
		if digits == 0 {
			return d, fmt.Errorf("DURATIONの形式が不正です: %q", v)
		}
		switch {
		case c == 'W' && !inTime:
			d.days += num * 7
		case c == 'D' && !inTime:
			d.days += num
		case c == 'H' && inTime:
			d.clock += time.Duration(num) * time.Hour
		case c == 'M' && inTime:
			d.clock += time.Duration(num) * time.Minute
		case c == 'S' && inTime:
			d.clock += time.Duration(num) * time.Second
		default:
			return d, fmt.Errorf("DURATIONの形式が不正です: %q", v)
		}
		num, digits = 0, 0
	}
	if digits > 0 {
		return d, fmt.Errorf("DURATIONの単位がありません: %q", v)
	}
	return d, nil
}
