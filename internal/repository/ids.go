package repository

import "github.com/google/uuid"

// validID はIDがUUID形式かを返す。
// UUID列に不正な文字列を渡すとPostgreSQLが構文エラーを返すため、
// 形式外のIDは問い合わせ前に「存在しない」として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
