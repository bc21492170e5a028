// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeGroupNotFound     = "GROUP_NOT_FOUND"
	ErrCodeInvalidQuery      = "INVALID_QUERY"
	ErrCodeInvalidTimezone   = "INVALID_TIMEZONE"
	ErrCodeProviderFailed    = "PROVIDER_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "validation",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewGroupNotFoundError はグループが見つからない場合のエラーを生成する。
func NewGroupNotFoundError(groupID string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("指定されたグループが見つかりません: %s", groupID),
		Category: "validation",
		Action:   "グループIDを確認してください。",
	}
}

// NewInvalidQueryError は検索条件が不正な場合のエラーを生成する。
func NewInvalidQueryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("検索条件が不正です: %s", reason),
		Category: "validation",
		Action:   "開始・終了時刻（RFC3339）と最小時間を確認してください。",
	}
}

// NewInvalidTimezoneError はタイムゾーン名を解決できない場合のエラーを生成する。
func NewInvalidTimezoneError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("タイムゾーンを解決できません: %s", name),
		Category: "validation",
		Action:   "IANAタイムゾーン名（例: Asia/Tokyo）を指定してください。",
	}
}

// NewProviderFailedError は外部カレンダーの取得に失敗した場合のエラーを生成する。
func NewProviderFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  "外部カレンダーの予定取得に失敗しました。",
		Category: "calendar",
		Action:   "カレンダー連携を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedError は呼び出し元を識別できない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
