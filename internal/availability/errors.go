package availability

import (
	"errors"
	"fmt"
)

// Kind はエンジンのエラー分類を表す。
type Kind string

const (
	// KindConfiguration は存在しないユーザー・グループなど、呼び出し自体が成立しないエラー。
	KindConfiguration Kind = "configuration"
	// KindExternalProvider は外部カレンダーの取得失敗・タイムアウト。
	KindExternalProvider Kind = "external_provider"
	// KindTimezone はIANAタイムゾーン名を解決できないエラー。
	KindTimezone Kind = "timezone"
	// KindValidation は検索条件や申告値が不正なエラー。
	KindValidation Kind = "validation"
)

// 分類ごとの原因を示すセンチネルエラー。
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrInvalidQuery     = errors.New("invalid availability query")
	ErrUnknownTimezone  = errors.New("unknown timezone")
	ErrUnknownProvider  = errors.New("unknown calendar provider")
	ErrProviderRejected = errors.New("calendar provider rejected the request")
)

// Error はエンジンが返す分類付きエラー。
// UserIDはメンバー単位の失敗で、どのメンバーに起因するかを示す（空の場合あり）。
type Error struct {
	Kind   Kind
	UserID string
	Err    error
}

func (e *Error) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s error for user %s: %v", e.Kind, e.UserID, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, userID string, err error) *Error {
	return &Error{Kind: kind, UserID: userID, Err: err}
}

// KindOf はエラーチェーン中の分類を返す。分類のないエラーの場合はfalseを返す。
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind はエラーが指定の分類に属するかを返す。
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// failureKind はグループ結果に記録する分類名を返す。分類のないエラーはinternalとする。
func failureKind(err error) string {
	if k, ok := KindOf(err); ok {
		return string(k)
	}
	return "internal"
}
