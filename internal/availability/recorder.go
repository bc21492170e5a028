package availability

import (
	"time"

	"github.com/hitoshi/coachcal/internal/model"
)

// Recorder はエンジンの処理状況を記録するメトリクスの受け口。
type Recorder interface {
	// ObserveQuery は検索1件の種別・所要時間・成否を記録する。
	ObserveQuery(kind string, d time.Duration, err error)
	// CountMemberSource はメンバーの空き時間の取得元を記録する。
	CountMemberSource(source model.SourceType)
	// CountMemberFailure は除外・失敗したメンバーをエラー分類ごとに記録する。
	CountMemberFailure(kind string)
	// ObserveGroupSlotsFound はグループ検索で見つかった共通スロット数（切り詰め前）を記録する。
	ObserveGroupSlotsFound(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveQuery(string, time.Duration, error) {}
func (nopRecorder) CountMemberSource(model.SourceType)        {}
func (nopRecorder) CountMemberFailure(string)                 {}
func (nopRecorder) ObserveGroupSlotsFound(int)                {}
