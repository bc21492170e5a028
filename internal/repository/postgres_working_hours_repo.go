package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/coachcal/internal/model"
)

// PostgresWorkingHoursRepo はPostgreSQLを使用した稼働時間設定リポジトリ。
type PostgresWorkingHoursRepo struct {
	db *sql.DB
}

// NewPostgresWorkingHoursRepo はPostgresWorkingHoursRepoを生成する。
func NewPostgresWorkingHoursRepo(db *sql.DB) *PostgresWorkingHoursRepo {
	return &PostgresWorkingHoursRepo{db: db}
}

// FindByUserID は指定ユーザーの上書き設定を取得する。未設定の場合はnilを返す。
// NULLの列は対応するフィールドをnilのまま返す。
func (r *PostgresWorkingHoursRepo) FindByUserID(ctx context.Context, userID string) (*model.WorkingHoursOverride, error) {
	if !validID(userID) {
		return nil, nil
	}

	var (
		startHour sql.NullInt64
		endHour   sql.NullInt64
		workDays  pq.Int64Array
		timezone  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT start_hour, end_hour, work_days, timezone
		 FROM working_hours WHERE user_id = $1`,
		userID,
	).Scan(&startHour, &endHour, &workDays, &timezone)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find working hours by user ID: %w", err)
	}

	return overrideFromColumns(userID, startHour, endHour, workDays, timezone), nil
}

// overrideFromColumns はNULL許容の列値から上書き設定を組み立てる。
// work_daysがNULLの場合はnil、空配列の場合は空スライスとして区別する。
func overrideFromColumns(userID string, startHour, endHour sql.NullInt64, workDays pq.Int64Array, timezone sql.NullString) *model.WorkingHoursOverride {
	o := &model.WorkingHoursOverride{UserID: userID}
	if startHour.Valid {
		v := int(startHour.Int64)
		o.StartHour = &v
	}
	if endHour.Valid {
		v := int(endHour.Int64)
		o.EndHour = &v
	}
	if workDays != nil {
		o.WorkDays = make([]int, len(workDays))
		for i, d := range workDays {
			o.WorkDays[i] = int(d)
		}
	}
	if timezone.Valid && timezone.String != "" {
		v := timezone.String
		o.Timezone = &v
	}
	return o
}

// compile-time interface check
var _ WorkingHoursRepository = (*PostgresWorkingHoursRepo)(nil)
