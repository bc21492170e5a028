package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/coachcal/internal/model"
)

// PostgresCalendarConnectionRepo はPostgreSQLを使用したカレンダー連携リポジトリ。
type PostgresCalendarConnectionRepo struct {
	db *sql.DB
}

// NewPostgresCalendarConnectionRepo はPostgresCalendarConnectionRepoを生成する。
func NewPostgresCalendarConnectionRepo(db *sql.DB) *PostgresCalendarConnectionRepo {
	return &PostgresCalendarConnectionRepo{db: db}
}

// FindByUserID は指定ユーザーのカレンダー連携を取得する。未連携の場合はnilを返す。
func (r *PostgresCalendarConnectionRepo) FindByUserID(ctx context.Context, userID string) (*model.CalendarConnection, error) {
	if !validID(userID) {
		return nil, nil
	}

	conn := &model.CalendarConnection{}
	var (
		provider    string
		calendarIDs pq.StringArray
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, provider, calendar_ids, access_token, feed_url, authorized
		 FROM calendar_connections WHERE user_id = $1`,
		userID,
	).Scan(&conn.UserID, &provider, &calendarIDs, &conn.AccessToken, &conn.FeedURL, &conn.Authorized)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar connection by user ID: %w", err)
	}

	conn.Provider = model.CalendarProvider(provider)
	conn.CalendarIDs = []string(calendarIDs)
	return conn, nil
}

// compile-time interface check
var _ CalendarConnectionRepository = (*PostgresCalendarConnectionRepo)(nil)
