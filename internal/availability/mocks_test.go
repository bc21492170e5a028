package availability

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

type mockGroupRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Group, error)
}

func (m *mockGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	return m.findByIDFn(ctx, id)
}

type mockWorkingHoursRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.WorkingHoursOverride, error)
}

func (m *mockWorkingHoursRepo) FindByUserID(ctx context.Context, userID string) (*model.WorkingHoursOverride, error) {
	if m.findByUserIDFn == nil {
		return nil, nil
	}
	return m.findByUserIDFn(ctx, userID)
}

type mockConnectionRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.CalendarConnection, error)
}

func (m *mockConnectionRepo) FindByUserID(ctx context.Context, userID string) (*model.CalendarConnection, error) {
	if m.findByUserIDFn == nil {
		return nil, nil
	}
	return m.findByUserIDFn(ctx, userID)
}

type mockManualSlotRepo struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]model.ManualSlot, error)
}

func (m *mockManualSlotRepo) ListByUserID(ctx context.Context, userID string) ([]model.ManualSlot, error) {
	if m.listByUserIDFn == nil {
		return []model.ManualSlot{}, nil
	}
	return m.listByUserIDFn(ctx, userID)
}

type mockCalendarClient struct {
	fetchBusyFn func(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error)
}

func (m *mockCalendarClient) FetchBusy(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error) {
	return m.fetchBusyFn(ctx, conn, timeMin, timeMax)
}

// mockRecorder は記録内容を保持するRecorder。
type mockRecorder struct {
	mu         sync.Mutex
	queries    map[string]int
	sources    map[model.SourceType]int
	failures   map[string]int
	slotsFound []int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{
		queries:  map[string]int{},
		sources:  map[model.SourceType]int{},
		failures: map[string]int{},
	}
}

func (m *mockRecorder) ObserveQuery(kind string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[kind]++
}
func (m *mockRecorder) CountMemberSource(source model.SourceType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source]++
}
func (m *mockRecorder) CountMemberFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}
func (m *mockRecorder) ObserveGroupSlotsFound(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slotsFound = append(m.slotsFound, n)
}

// --- ヘルパー ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("タイムゾーン %q の読み込みに失敗: %v", name, err)
	}
	return loc
}

// at はlocでの日時をUTCのtime.Timeで返す。
func at(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func slot(start, end time.Time) model.FreeSlot {
	return model.NewFreeSlot(start, end)
}

func defaultWorkingHours() model.WorkingHoursConfig {
	return model.WorkingHoursConfig{
		StartHour: 9,
		EndHour:   18,
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Timezone:  "Asia/Tokyo",
	}
}

func sameSlots(a, b []model.FreeSlot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) || a[i].DurationMinutes != b[i].DurationMinutes {
			return false
		}
	}
	return true
}

// testEnv はServiceとモック群をまとめたテスト用の環境。
type testEnv struct {
	users    map[string]bool
	conns    map[string]*model.CalendarConnection
	manual   map[string][]model.ManualSlot
	hours    map[string]*model.WorkingHoursOverride
	busy     map[string][]model.BusyInterval
	failCal  map[string]error
	groups   map[string][]string
	recorder *mockRecorder
	opts     Options
	fetchFn  func(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error)
}

func newTestEnv() *testEnv {
	return &testEnv{
		users:    map[string]bool{},
		conns:    map[string]*model.CalendarConnection{},
		manual:   map[string][]model.ManualSlot{},
		hours:    map[string]*model.WorkingHoursOverride{},
		busy:     map[string][]model.BusyInterval{},
		failCal:  map[string]error{},
		groups:   map[string][]string{},
		recorder: newMockRecorder(),
		opts: Options{
			DefaultTimezone: "Asia/Tokyo",
			ProviderTimeout: time.Second,
		},
	}
}

// addCalendarUser はGoogleカレンダー連携済みのユーザーを登録する。
func (e *testEnv) addCalendarUser(id, tz string, busy ...model.BusyInterval) {
	e.users[id] = true
	e.conns[id] = &model.CalendarConnection{
		UserID:      id,
		Provider:    model.CalendarProviderGoogle,
		CalendarIDs: []string{"primary"},
		AccessToken: "token-" + id,
		Authorized:  true,
	}
	e.hours[id] = &model.WorkingHoursOverride{UserID: id, Timezone: &tz}
	e.busy[id] = busy
}

// addManualUser は手動申告のみのユーザーを登録する。
func (e *testEnv) addManualUser(id, tz string, slots ...model.ManualSlot) {
	e.users[id] = true
	e.manual[id] = slots
	e.hours[id] = &model.WorkingHoursOverride{UserID: id, Timezone: &tz}
}

func (e *testEnv) service() *Service {
	defaults := defaultWorkingHours()
	resolver := NewWorkingHoursResolver(&mockWorkingHoursRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.WorkingHoursOverride, error) {
			return e.hours[userID], nil
		},
	}, defaults, testLogger())

	fetch := e.fetchFn
	if fetch == nil {
		fetch = func(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error) {
			if err := e.failCal[conn.UserID]; err != nil {
				return nil, err
			}
			return e.busy[conn.UserID], nil
		}
	}

	return NewService(Dependencies{
		Users: &mockUserRepo{findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if e.users[id] {
				return &model.User{ID: id}, nil
			}
			return nil, nil
		}},
		Groups: &mockGroupRepo{findByIDFn: func(ctx context.Context, id string) (*model.Group, error) {
			members, ok := e.groups[id]
			if !ok {
				return nil, nil
			}
			return &model.Group{ID: id, MemberIDs: members}, nil
		}},
		WorkingHours: resolver,
		Connections: &mockConnectionRepo{findByUserIDFn: func(ctx context.Context, userID string) (*model.CalendarConnection, error) {
			return e.conns[userID], nil
		}},
		ManualSlots: &mockManualSlotRepo{listByUserIDFn: func(ctx context.Context, userID string) ([]model.ManualSlot, error) {
			return e.manual[userID], nil
		}},
		Calendar: &mockCalendarClient{fetchBusyFn: fetch},
		Recorder: e.recorder,
	}, e.opts, testLogger())
}
