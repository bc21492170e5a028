package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/coachcal/internal/model"
)

// GroupQuery はグループ共通の空き時間検索の条件を表す。
// ゼロ値・nilのフィールドはデフォルト値で補完する。
type GroupQuery struct {
	MemberIDs []string
	// RangeStart が未指定（ゼロ値）の場合は現在時刻。
	RangeStart time.Time
	// RangeEnd が未指定（ゼロ値）の場合は RangeStart + 先読み日数。
	RangeEnd time.Time
	// MinDurationMinutes がnilの場合は60分。
	MinDurationMinutes *int
	// MaxSlots が0以下の場合は5件。
	MaxSlots int
	// Timezone はスコアリングに使うタイムゾーン。空の場合はシステムデフォルト。
	Timezone string
}

// memberResult はメンバー1人分の取得結果。
type memberResult struct {
	userID string
	slots  []model.FreeSlot
	source model.SourceType
	err    error
}

// FindGroupAvailability は指定メンバー全員に共通する空き時間を検索し、スコア順に返す。
//
// 取得に失敗したメンバーはErrors/Failuresに記録し、共通部分の畳み込みから除外する。
// メンバー単位の失敗ではエラーを返さない。検索条件の不正（Validation）、
// スコアリング用タイムゾーンの不正（Timezone）、呼び出し元のキャンセルのみエラーを返す。
func (s *Service) FindGroupAvailability(ctx context.Context, gq GroupQuery) (result *model.GroupAvailabilityResult, err error) {
	defer s.observe("group", time.Now(), &err)

	queryID := uuid.NewString()
	start := time.Now()

	q, maxSlots, err := s.normalizeGroupQuery(gq)
	if err != nil {
		return nil, err
	}
	scoringTZ := gq.Timezone
	if scoringTZ == "" {
		scoringTZ = s.opts.DefaultTimezone
	}
	loc, err := LoadLocation(scoringTZ)
	if err != nil {
		return nil, newError(KindTimezone, "", err)
	}

	memberIDs := dedupeIDs(gq.MemberIDs)
	result = &model.GroupAvailabilityResult{
		Slots:    []model.FreeSlot{},
		Errors:   []string{},
		Failures: []model.MemberFailure{},
	}
	if len(memberIDs) == 0 {
		s.deps.Recorder.ObserveGroupSlotsFound(0)
		return result, nil
	}

	results := s.collectMembers(ctx, memberIDs, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lists [][]model.FreeSlot
	for _, r := range results {
		if r.err != nil {
			kind := failureKind(r.err)
			result.Errors = append(result.Errors, r.userID)
			result.Failures = append(result.Failures, model.MemberFailure{
				UserID:  r.userID,
				Kind:    kind,
				Message: r.err.Error(),
			})
			s.deps.Recorder.CountMemberFailure(kind)
			s.logger.Error("メンバーの空き時間取得に失敗したため共通部分の算出から除外します",
				slog.String("query_id", queryID),
				slog.String("user_id", r.userID),
				slog.String("kind", kind),
				slog.String("error", r.err.Error()),
			)
			continue
		}

		switch r.source {
		case model.SourceTypeCalendar:
			result.UsersWithCalendarSource++
		case model.SourceTypeManual:
			result.UsersWithManualSource++
		}
		s.deps.Recorder.CountMemberSource(r.source)
		lists = append(lists, r.slots)
	}

	common := IntersectAll(lists, q.MinDurationMinutes)
	result.TotalFound = len(common)
	result.Slots = RankSlots(common, loc, maxSlots)
	s.deps.Recorder.ObserveGroupSlotsFound(result.TotalFound)

	s.logger.Info("グループ空き時間検索が完了しました",
		slog.String("query_id", queryID),
		slog.Int("member_count", len(memberIDs)),
		slog.Int("failed_count", len(result.Errors)),
		slog.Int("total_found", result.TotalFound),
		slog.Int("calendar_source", result.UsersWithCalendarSource),
		slog.Int("manual_source", result.UsersWithManualSource),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// FindGroupAvailabilityForGroup は登録済みグループのメンバー全員に共通する空き時間を検索する。
// gq.MemberIDs は無視し、グループのメンバー一覧を使う。存在しないグループはConfigurationエラー。
func (s *Service) FindGroupAvailabilityForGroup(ctx context.Context, groupID string, gq GroupQuery) (*model.GroupAvailabilityResult, error) {
	group, err := s.deps.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("グループの取得に失敗: %w", err)
	}
	if group == nil {
		return nil, newError(KindConfiguration, "", fmt.Errorf("%w: %s", ErrGroupNotFound, groupID))
	}

	gq.MemberIDs = group.MemberIDs
	return s.FindGroupAvailability(ctx, gq)
}

// collectMembers はメンバーごとの空き時間をsemaphoreパターンで並列に取得する。
// 結果は入力順に並ぶ。ctxがキャンセルされた場合、未開始のメンバーはキャンセルエラーとなり、
// 実行中の取得にもキャンセルが伝播する。
func (s *Service) collectMembers(ctx context.Context, memberIDs []string, q model.AvailabilityQuery) []memberResult {
	results := make([]memberResult, len(memberIDs))

	sem := make(chan struct{}, s.opts.MaxConcurrent)
	var wg sync.WaitGroup

	for i, id := range memberIDs {
		select {
		case sem <- struct{}{}: // semaphore取得（ブロック）
		case <-ctx.Done():
			results[i] = memberResult{userID: id, err: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			results[i] = s.fetchMember(ctx, userID, q)
		}(i, id)
	}

	wg.Wait()
	return results
}

// fetchMember はメンバー1人分の存在確認と空き時間の算出を行う。
func (s *Service) fetchMember(ctx context.Context, userID string, q model.AvailabilityQuery) memberResult {
	if err := s.ensureUser(ctx, userID); err != nil {
		return memberResult{userID: userID, err: err}
	}
	slots, source, err := s.memberFreeSlots(ctx, userID, q)
	return memberResult{userID: userID, slots: slots, source: source, err: err}
}

// normalizeGroupQuery はデフォルト値を補完して検証済みの検索条件と最大件数を返す。
func (s *Service) normalizeGroupQuery(gq GroupQuery) (model.AvailabilityQuery, int, error) {
	rangeStart := gq.RangeStart
	if rangeStart.IsZero() {
		rangeStart = s.opts.Now()
	}
	rangeEnd := gq.RangeEnd
	if rangeEnd.IsZero() {
		rangeEnd = rangeStart.AddDate(0, 0, s.opts.LookaheadDays)
	}
	minDur := DefaultMinDurationMinutes
	if gq.MinDurationMinutes != nil {
		minDur = *gq.MinDurationMinutes
	}
	maxSlots := gq.MaxSlots
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}

	q := model.AvailabilityQuery{
		RangeStart:         rangeStart.UTC(),
		RangeEnd:           rangeEnd.UTC(),
		MinDurationMinutes: minDur,
	}
	if err := s.validateQuery(q); err != nil {
		return model.AvailabilityQuery{}, 0, err
	}
	return q, maxSlots, nil
}

// dedupeIDs は空文字と重複を除き、最初の出現順を保ったIDリストを返す。
func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
