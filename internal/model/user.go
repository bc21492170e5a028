// Package model はドメインモデルを定義する。
package model

import "time"

// User はコーチングプラットフォームの利用ユーザーを表す。
// 認証・プロフィール管理は外部の責務であり、ここでは存在確認に必要な項目のみ持つ。
type User struct {
	ID        string
	CreatedAt time.Time
}

// Group はスケジュール調整の対象となるユーザーの集まりを表す。
type Group struct {
	ID        string
	MemberIDs []string
}
