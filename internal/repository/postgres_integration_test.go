package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/hitoshi/coachcal/internal/database"
	"github.com/hitoshi/coachcal/internal/model"
)

// setupIntegrationDB はマイグレーション済みのテスト用データベースを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		db.Close()
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertUser(t *testing.T, db *sql.DB) string {
	t.Helper()
	var id string
	if err := db.QueryRow(`INSERT INTO users DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
		t.Fatalf("ユーザー挿入に失敗: %v", err)
	}
	t.Cleanup(func() { db.Exec(`DELETE FROM users WHERE id = $1`, id) })
	return id
}

func TestIntegration_UserAndGroup(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()

	u1 := insertUser(t, db)
	u2 := insertUser(t, db)

	user, err := NewPostgresUserRepo(db).FindByID(ctx, u1)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if user == nil || user.ID != u1 {
		t.Fatalf("FindByID = %+v, want id %s", user, u1)
	}

	var groupID string
	if err := db.QueryRow(`INSERT INTO groups (name) VALUES ('coaching') RETURNING id`).Scan(&groupID); err != nil {
		t.Fatalf("グループ挿入に失敗: %v", err)
	}
	t.Cleanup(func() { db.Exec(`DELETE FROM groups WHERE id = $1`, groupID) })

	repo := NewPostgresGroupRepo(db)

	empty, err := repo.FindByID(ctx, groupID)
	if err != nil {
		t.Fatalf("FindByID(empty group) failed: %v", err)
	}
	if empty == nil || len(empty.MemberIDs) != 0 {
		t.Fatalf("メンバーのいないグループは空のMemberIDsで返すべき: %+v", empty)
	}

	db.Exec(`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, now() - interval '1 hour')`, groupID, u2)
	db.Exec(`INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, now())`, groupID, u1)

	group, err := repo.FindByID(ctx, groupID)
	if err != nil {
		t.Fatalf("FindByID(group) failed: %v", err)
	}
	if len(group.MemberIDs) != 2 || group.MemberIDs[0] != u2 || group.MemberIDs[1] != u1 {
		t.Errorf("MemberIDs = %v, want [%s %s]", group.MemberIDs, u2, u1)
	}

	missing, err := repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil || missing != nil {
		t.Errorf("存在しないグループは nil, nil を返すべき: %v, %v", missing, err)
	}
}

func TestIntegration_WorkingHoursAndManualSlots(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	whRepo := NewPostgresWorkingHoursRepo(db)
	none, err := whRepo.FindByUserID(ctx, userID)
	if err != nil || none != nil {
		t.Fatalf("未設定の場合は nil, nil を返すべき: %v, %v", none, err)
	}

	if _, err := db.Exec(`INSERT INTO working_hours (user_id, end_hour, work_days) VALUES ($1, 17, '{1,2}')`, userID); err != nil {
		t.Fatalf("稼働時間挿入に失敗: %v", err)
	}
	o, err := whRepo.FindByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("FindByUserID failed: %v", err)
	}
	if o.StartHour != nil || o.EndHour == nil || *o.EndHour != 17 || len(o.WorkDays) != 2 || o.Timezone != nil {
		t.Errorf("override = %+v", o)
	}

	db.Exec(`INSERT INTO manual_availability (user_id, day, hour) VALUES ($1, 2, 10), ($1, 1, 9), ($1, 7, 99)`, userID)
	slots, err := NewPostgresManualSlotRepo(db).ListByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUserID failed: %v", err)
	}
	want := []model.ManualSlot{{Day: 1, Hour: 9}, {Day: 2, Hour: 10}, {Day: 7, Hour: 99}}
	if len(slots) != len(want) {
		t.Fatalf("len(slots) = %d, want %d", len(slots), len(want))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slots[%d] = %+v, want %+v", i, slots[i], want[i])
		}
	}
}

func TestIntegration_CalendarConnection(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	repo := NewPostgresCalendarConnectionRepo(db)
	none, err := repo.FindByUserID(ctx, userID)
	if err != nil || none != nil {
		t.Fatalf("未連携の場合は nil, nil を返すべき: %v, %v", none, err)
	}

	_, err = db.Exec(
		`INSERT INTO calendar_connections (user_id, provider, calendar_ids, access_token, authorized)
		 VALUES ($1, 'google', '{primary,work@example.com}', 'token', true)`,
		userID,
	)
	if err != nil {
		t.Fatalf("カレンダー連携挿入に失敗: %v", err)
	}

	conn, err := repo.FindByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("FindByUserID failed: %v", err)
	}
	if conn.Provider != model.CalendarProviderGoogle || !conn.Authorized || conn.AccessToken != "token" {
		t.Errorf("connection = %+v", conn)
	}
	if len(conn.CalendarIDs) != 2 || conn.CalendarIDs[1] != "work@example.com" {
		t.Errorf("CalendarIDs = %v", conn.CalendarIDs)
	}
	if !conn.Usable() {
		t.Error("認可済みでカレンダーIDを持つ連携は利用可能であるべき")
	}
}
