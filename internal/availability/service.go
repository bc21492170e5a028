// Package availability はユーザーの空き時間算出とグループ共通の空き時間検索を提供する。
// 稼働時間の解決、取得元（カレンダー／手動申告）の選択、空き時間の算出・結合、
// メンバー間の共通部分の畳み込み、スコアによる順位づけを含む。
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
	"github.com/hitoshi/coachcal/internal/repository"
)

// デフォルトの検索条件。
const (
	DefaultMinDurationMinutes = 60
	DefaultMaxSlots           = 5
	DefaultLookaheadDays      = 14
	DefaultMaxRangeDays       = 62
	DefaultMaxConcurrent      = 8
)

// Options はServiceの動作設定。ゼロ値のフィールドはデフォルト値で補完する。
type Options struct {
	// DefaultTimezone はグループ検索のスコアリングに使うタイムゾーン（指定がない場合）。
	DefaultTimezone string
	LookaheadDays   int
	MaxRangeDays    int
	// MaxConcurrent はグループ検索でメンバーの取得を並列実行する上限。
	MaxConcurrent int
	// ProviderTimeout は外部カレンダー1回の取得にかける上限時間。
	ProviderTimeout time.Duration
	// Now は現在時刻を返す。テストで差し替える。
	Now func() time.Time
}

// Dependencies はServiceが利用する外部コラボレーター。
type Dependencies struct {
	Users        repository.UserRepository
	Groups       repository.GroupRepository
	WorkingHours *WorkingHoursResolver
	Connections  repository.CalendarConnectionRepository
	ManualSlots  repository.ManualSlotRepository
	Calendar     CalendarClient
	Recorder     Recorder
}

// Service は空き時間検索のサービス層。
// 呼び出しごとに入力から結果を算出し、算出結果をキャッシュ・永続化しない。
type Service struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(deps Dependencies, opts Options, logger *slog.Logger) *Service {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "Asia/Tokyo"
	}
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = DefaultLookaheadDays
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = DefaultMaxRangeDays
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{deps: deps, opts: opts, logger: logger}
}

// GetUserAvailability は指定ユーザーの [rangeStart, rangeEnd) における空き時間を返す。
// 存在しないユーザーはConfiguration、解決できないタイムゾーンはTimezone、
// カレンダー取得の失敗はExternalProviderエラーとして呼び出し元に返す。
func (s *Service) GetUserAvailability(ctx context.Context, userID string, rangeStart, rangeEnd time.Time, minDurationMinutes int) (slots []model.FreeSlot, err error) {
	defer s.observe("user", time.Now(), &err)

	q := model.AvailabilityQuery{
		RangeStart:         rangeStart.UTC(),
		RangeEnd:           rangeEnd.UTC(),
		MinDurationMinutes: minDurationMinutes,
	}
	if err := s.validateQuery(q); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	slots, _, err = s.memberFreeSlots(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// CheckSlotAvailable は [start, end) 全体が指定ユーザーの1つの空き時間に含まれるかを返す。
// 部分的な重なりでは空きとみなさない。
func (s *Service) CheckSlotAvailable(ctx context.Context, userID string, start, end time.Time) (ok bool, err error) {
	defer s.observe("check", time.Now(), &err)

	if !start.Before(end) {
		return false, newError(KindValidation, userID, fmt.Errorf("%w: start must be before end", ErrInvalidQuery))
	}
	q := model.AvailabilityQuery{
		RangeStart:         start.UTC(),
		RangeEnd:           end.UTC(),
		MinDurationMinutes: int(end.Sub(start) / time.Minute),
	}
	if err := s.validateQuery(q); err != nil {
		return false, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return false, err
	}

	slots, _, err := s.memberFreeSlots(ctx, userID, q)
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if !slot.Start.After(start) && !slot.End.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

// memberFreeSlots はメンバー1人分の稼働時間を解決し、取得元を選んで空き時間を算出する。
func (s *Service) memberFreeSlots(ctx context.Context, userID string, q model.AvailabilityQuery) ([]model.FreeSlot, model.SourceType, error) {
	wh := s.deps.WorkingHours.Resolve(ctx, userID)

	src, err := s.selectSource(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	slots, err := src.FreeSlots(ctx, q, wh)
	if err != nil {
		return nil, src.Type(), err
	}
	return slots, src.Type(), nil
}

// selectSource は認可済みで利用可能なカレンダー連携があればCalendarSourceを、
// なければ手動申告のManualSourceを返す。
func (s *Service) selectSource(ctx context.Context, userID string) (Source, error) {
	conn, err := s.deps.Connections.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カレンダー連携の取得に失敗: %w", err)
	}
	if conn.Usable() {
		return NewCalendarSource(userID, conn, s.deps.Calendar, s.opts.ProviderTimeout), nil
	}

	manual, err := s.deps.ManualSlots.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("手動申告枠の取得に失敗: %w", err)
	}
	return NewManualSource(userID, manual, s.logger), nil
}

func (s *Service) ensureUser(ctx context.Context, userID string) error {
	user, err := s.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if user == nil {
		return newError(KindConfiguration, userID, ErrUserNotFound)
	}
	return nil
}

func (s *Service) validateQuery(q model.AvailabilityQuery) error {
	switch {
	case !q.RangeStart.Before(q.RangeEnd):
		return newError(KindValidation, "", fmt.Errorf("%w: range start must be before range end", ErrInvalidQuery))
	case q.MinDurationMinutes < 0:
		return newError(KindValidation, "", fmt.Errorf("%w: min duration must not be negative", ErrInvalidQuery))
	case q.RangeEnd.Sub(q.RangeStart) > time.Duration(s.opts.MaxRangeDays)*24*time.Hour:
		return newError(KindValidation, "", fmt.Errorf("%w: range must not exceed %d days", ErrInvalidQuery, s.opts.MaxRangeDays))
	}
	return nil
}

func (s *Service) observe(kind string, start time.Time, err *error) {
	s.deps.Recorder.ObserveQuery(kind, time.Since(start), *err)
}
