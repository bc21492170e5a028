package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/coachcal/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// FindByID は指定IDのグループをメンバーID付きで取得する。見つからない場合はnilを返す。
// メンバーのいないグループは空のMemberIDsで返す。
func (r *PostgresGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	if !validID(id) {
		return nil, nil
	}

	var (
		groupID   string
		memberIDs pq.StringArray
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT g.id,
		        COALESCE(
		            array_agg(gm.user_id::text ORDER BY gm.joined_at, gm.user_id)
		                FILTER (WHERE gm.user_id IS NOT NULL),
		            '{}'
		        )
		 FROM groups g
		 LEFT JOIN group_members gm ON gm.group_id = g.id
		 WHERE g.id = $1
		 GROUP BY g.id`,
		id,
	).Scan(&groupID, &memberIDs)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group by ID: %w", err)
	}

	return &model.Group{ID: groupID, MemberIDs: []string(memberIDs)}, nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
