package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/coachcal/internal/model"
)

// PostgresManualSlotRepo はPostgreSQLを使用した手動申告枠リポジトリ。
type PostgresManualSlotRepo struct {
	db *sql.DB
}

// NewPostgresManualSlotRepo はPostgresManualSlotRepoを生成する。
func NewPostgresManualSlotRepo(db *sql.DB) *PostgresManualSlotRepo {
	return &PostgresManualSlotRepo{db: db}
}

// ListByUserID は指定ユーザーの申告枠を保存値のまま返す。
// 範囲外の値もそのまま返し、除外は呼び出し側が行う。
func (r *PostgresManualSlotRepo) ListByUserID(ctx context.Context, userID string) ([]model.ManualSlot, error) {
	if !validID(userID) {
		return []model.ManualSlot{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT day, hour FROM manual_availability
		 WHERE user_id = $1
		 ORDER BY day, hour`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual slots: %w", err)
	}
	defer rows.Close()

	slots := []model.ManualSlot{}
	for rows.Next() {
		var s model.ManualSlot
		if err := rows.Scan(&s.Day, &s.Hour); err != nil {
			return nil, fmt.Errorf("failed to scan manual slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate manual slots: %w", err)
	}

	return slots, nil
}

// compile-time interface check
var _ ManualSlotRepository = (*PostgresManualSlotRepo)(nil)
