package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/coachcal/internal/model"
	"github.com/hitoshi/coachcal/internal/repository"
)

// WorkingHoursResolver はユーザーの有効な稼働時間設定を解決する。
// 保存済みの上書き値をフィールド単位でデフォルトとマージし、常に完全な設定を返す。
type WorkingHoursResolver struct {
	repo     repository.WorkingHoursRepository
	defaults model.WorkingHoursConfig
	logger   *slog.Logger
}

// NewWorkingHoursResolver はWorkingHoursResolverの新しいインスタンスを生成する。
// defaultsは妥当な設定（StartHour < EndHour、稼働日1日以上）であること。
func NewWorkingHoursResolver(repo repository.WorkingHoursRepository, defaults model.WorkingHoursConfig, logger *slog.Logger) *WorkingHoursResolver {
	return &WorkingHoursResolver{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
	}
}

// Resolve は指定ユーザーの稼働時間設定を返す。エラーは返さない。
// ストアの読み出しに失敗した場合はWARNログを出してデフォルトを返す。
// タイムゾーン名は検証しない（解決できない場合は算出時にTimezoneエラーとなる）。
func (r *WorkingHoursResolver) Resolve(ctx context.Context, userID string) model.WorkingHoursConfig {
	cfg := r.copyDefaults()

	override, err := r.repo.FindByUserID(ctx, userID)
	if err != nil {
		r.logger.Warn("稼働時間設定の取得に失敗したためデフォルトを使用します",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return cfg
	}
	if override == nil {
		return cfg
	}

	if override.StartHour != nil && validHour(*override.StartHour) {
		cfg.StartHour = *override.StartHour
	}
	if override.EndHour != nil && validHour(*override.EndHour) {
		cfg.EndHour = *override.EndHour
	}
	if cfg.StartHour >= cfg.EndHour {
		r.logger.Warn("稼働時間の開始が終了以降のため時刻はデフォルトを使用します",
			slog.String("user_id", userID),
			slog.Int("start_hour", cfg.StartHour),
			slog.Int("end_hour", cfg.EndHour),
		)
		cfg.StartHour = r.defaults.StartHour
		cfg.EndHour = r.defaults.EndHour
	}

	if days := normalizeWorkDays(override.WorkDays); len(days) > 0 {
		cfg.WorkDays = days
	}

	if override.Timezone != nil && *override.Timezone != "" {
		cfg.Timezone = *override.Timezone
	}

	return cfg
}

func (r *WorkingHoursResolver) copyDefaults() model.WorkingHoursConfig {
	cfg := r.defaults
	cfg.WorkDays = append([]time.Weekday(nil), r.defaults.WorkDays...)
	return cfg
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// normalizeWorkDays は0-6の範囲外と重複を除いた曜日リストを返す。
func normalizeWorkDays(days []int) []time.Weekday {
	var out []time.Weekday
	seen := [7]bool{}
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	return out
}
