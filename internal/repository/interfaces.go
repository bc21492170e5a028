// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/coachcal/internal/model"
)

// UserRepository はユーザーデータの参照インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// GroupRepository はグループメンバーシップの参照インターフェース。
type GroupRepository interface {
	// FindByID は指定IDのグループをメンバーID付きで取得する。見つからない場合はnilを返す。
	// MemberIDsは参加順（同時刻の場合はユーザーID順）で並ぶ。
	FindByID(ctx context.Context, id string) (*model.Group, error)
}

// WorkingHoursRepository はユーザーごとの稼働時間上書き設定の参照インターフェース。
type WorkingHoursRepository interface {
	// FindByUserID は指定ユーザーの上書き設定を取得する。未設定の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.WorkingHoursOverride, error)
}

// ManualSlotRepository は手動申告の週次空き枠の参照インターフェース。
type ManualSlotRepository interface {
	// ListByUserID は指定ユーザーの申告枠を保存値のまま返す。未申告の場合は空スライスを返す。
	ListByUserID(ctx context.Context, userID string) ([]model.ManualSlot, error)
}

// CalendarConnectionRepository は外部カレンダー連携情報の参照インターフェース。
type CalendarConnectionRepository interface {
	// FindByUserID は指定ユーザーのカレンダー連携を取得する。未連携の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.CalendarConnection, error)
}
