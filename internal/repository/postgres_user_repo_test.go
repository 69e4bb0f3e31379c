package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/guildview/internal/database"
	"github.com/hitoshi/guildview/internal/model"
	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", errors.Join(errors.New("insert"), &pq.Error{Code: "23505"}), true},
		{"other pq error", &pq.Error{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullStringConversion(t *testing.T) {
	if ns := toNullString(nil); ns.Valid {
		t.Error("toNullString(nil) should be invalid")
	}
	s := "avatar-hash"
	ns := toNullString(&s)
	if !ns.Valid || ns.String != s {
		t.Errorf("toNullString(&s) = %+v", ns)
	}
	if got := fromNullString(sql.NullString{}); got != nil {
		t.Errorf("fromNullString(invalid) = %v, want nil", *got)
	}
	if got := fromNullString(ns); got == nil || *got != s {
		t.Errorf("fromNullString(valid) = %v, want %q", got, s)
	}
}

// --- 以下はTEST_DATABASE_URLが設定されている場合のみ実行する統合テスト ---

func setupRepoTestDB(t *testing.T) *sql.DB {
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
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE users, sessions RESTART IDENTITY`); err != nil {
		t.Fatalf("TRUNCATEに失敗: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := &model.User{
		DiscordID:     "123",
		Username:      "alice",
		Discriminator: "0001",
		AccessToken:   strPtr("access"),
		RefreshToken:  strPtr("refresh"),
	}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if user.ID == 0 {
		t.Error("expected surrogate ID to be assigned")
	}

	found, err := repo.FindByDiscordID(ctx, "123")
	if err != nil {
		t.Fatalf("FindByDiscordID() error = %v", err)
	}
	if found == nil {
		t.Fatal("expected user to be found")
	}
	if found.ID != user.ID || found.Username != "alice" || found.Discriminator != "0001" {
		t.Errorf("found = %+v", found)
	}
	if found.Avatar != nil {
		t.Errorf("Avatar = %q, want nil", *found.Avatar)
	}
	if found.AccessToken == nil || *found.AccessToken != "access" {
		t.Errorf("AccessToken = %v, want %q", found.AccessToken, "access")
	}
}

func TestPostgresUserRepo_FindByDiscordID_NotFound(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresUserRepo(db)

	found, err := repo.FindByDiscordID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByDiscordID() error = %v", err)
	}
	if found != nil {
		t.Errorf("expected nil, got %+v", found)
	}
}

func TestPostgresUserRepo_Create_Duplicate_ReturnsErrUserAlreadyExists(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.User{DiscordID: "123", Username: "alice", Discriminator: "0001"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, &model.User{DiscordID: "123", Username: "alice", Discriminator: "0001"})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Errorf("err = %v, want ErrUserAlreadyExists", err)
	}
}

func TestPostgresUserRepo_Create_ConcurrentSameDiscordID_CreatesOneRow(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, &model.User{DiscordID: "race", Username: "bob", Discriminator: "0002"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrUserAlreadyExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	var count int
	if err := db.QueryRow(`SELECT count(*) FROM users WHERE discord_id = 'race'`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()
	now := time.Now()

	session := &model.Session{
		ID:        "session-1",
		Data:      []byte(`{"discordId":"123"}`),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := repo.FindByID(ctx, "session-1")
	if err != nil || found == nil {
		t.Fatalf("FindByID() = %v, %v", found, err)
	}
	if string(found.Data) != `{"discordId":"123"}` {
		t.Errorf("Data = %s", found.Data)
	}

	newExpiry := now.Add(2 * time.Hour)
	if err := repo.Touch(ctx, "session-1", newExpiry); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	found, _ = repo.FindByID(ctx, "session-1")
	if found == nil || found.ExpiresAt.Before(now.Add(90*time.Minute)) {
		t.Errorf("ExpiresAt was not extended: %+v", found)
	}

	if err := repo.DeleteByID(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	found, err = repo.FindByID(ctx, "session-1")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Error("expected session to be deleted")
	}
}

func TestPostgresSessionRepo_FindByID_Expired_ReturnsNil(t *testing.T) {
	db := setupRepoTestDB(t)
	repo := NewPostgresSessionRepo(db)
	ctx := context.Background()

	err := repo.Create(ctx, &model.Session{
		ID:        "expired",
		Data:      []byte(`{}`),
		ExpiresAt: time.Now().Add(-time.Minute),
		CreatedAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := repo.FindByID(ctx, "expired")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found != nil {
		t.Error("expected nil for expired session")
	}
}
