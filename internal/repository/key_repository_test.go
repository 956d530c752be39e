package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ai-gateway/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// client_keysテーブルを作成
	sql := `
		CREATE TABLE client_keys (
			id TEXT PRIMARY KEY,
			key_digest BLOB NOT NULL,
			salt BLOB NOT NULL,
			app_name TEXT NOT NULL,
			app_contact TEXT NOT NULL,
			app_note TEXT,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME
		);
		CREATE INDEX idx_enabled ON client_keys(enabled);
	`

	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create client_keys table: %v", err)
	}

	return db
}

func newTestKey(appName string, enabled bool) *domain.ClientKey {
	return &domain.ClientKey{
		KeyDigest:  []byte("digest-" + appName),
		Salt:       []byte("salt-" + appName),
		AppName:    appName,
		AppContact: appName + "@example.com",
		Enabled:    enabled,
	}
}

func TestKeyRepository_Create(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	key := newTestKey("app-1", true)
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// IDとタイムスタンプが反映される
	if key.ID == "" {
		t.Error("expected generated ID, got empty string")
	}
	if key.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	found, err := repo.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found == nil {
		t.Fatal("expected key to be found")
	}
	if found.AppName != "app-1" {
		t.Errorf("expected app_name 'app-1', got %q", found.AppName)
	}
	if found.LastUsedAt != nil {
		t.Error("expected LastUsedAt to be nil for a new key")
	}
}

func TestKeyRepository_FindByID_NotFound(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	found, err := repo.FindByID(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found != nil {
		t.Error("expected nil for a missing key")
	}
}

func TestKeyRepository_FindAllEnabled(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	for _, k := range []*domain.ClientKey{
		newTestKey("enabled-1", true),
		newTestKey("disabled-1", false),
		newTestKey("enabled-2", true),
	} {
		if err := repo.Create(ctx, k); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	keys, err := repo.FindAllEnabled(ctx)
	if err != nil {
		t.Fatalf("FindAllEnabled failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 enabled keys, got %d", len(keys))
	}
	for _, k := range keys {
		if !k.Enabled {
			t.Errorf("expected only enabled keys, got disabled key %q", k.AppName)
		}
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 keys in total, got %d", len(all))
	}
}

func TestKeyRepository_Update(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	key := newTestKey("app-1", true)
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Enabled=falseへの更新がゼロ値スキップされないこと
	newName := "renamed-app"
	disabled := false
	updated, err := repo.Update(ctx, key.ID, domain.ClientKeyPatch{
		AppName: &newName,
		Enabled: &disabled,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated key, got nil")
	}
	if updated.AppName != "renamed-app" {
		t.Errorf("expected app_name 'renamed-app', got %q", updated.AppName)
	}
	if updated.Enabled {
		t.Error("expected key to be disabled")
	}

	// nilのフィールドは変更されないこと
	if updated.AppContact != key.AppContact {
		t.Errorf("expected app_contact to be unchanged, got %q", updated.AppContact)
	}

	found, err := repo.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.Enabled {
		t.Error("expected disabled state to be persisted")
	}
}

func TestKeyRepository_Update_NotFound(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	name := "whatever"
	updated, err := repo.Update(ctx, "no-such-id", domain.ClientKeyPatch{AppName: &name})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated != nil {
		t.Error("expected nil for a missing key")
	}
}

func TestKeyRepository_UpdateCredential(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	key := newTestKey("app-1", true)
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := repo.UpdateCredential(ctx, key.ID, []byte("new-digest"), []byte("new-salt"))
	if err != nil {
		t.Fatalf("UpdateCredential failed: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated key, got nil")
	}
	if string(updated.KeyDigest) != "new-digest" {
		t.Error("expected digest to be replaced")
	}
	if string(updated.Salt) != "new-salt" {
		t.Error("expected salt to be replaced")
	}
	// メタデータは保持されること
	if updated.AppName != "app-1" {
		t.Errorf("expected app_name to be unchanged, got %q", updated.AppName)
	}
}

func TestKeyRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	key := newTestKey("app-1", true)
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	existed, err := repo.Delete(ctx, key.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Error("expected existed=true for a present key")
	}

	found, err := repo.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found != nil {
		t.Error("expected key to be gone after delete")
	}

	// 既に存在しないIDの削除はexisted=false
	existed, err = repo.Delete(ctx, key.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if existed {
		t.Error("expected existed=false for a missing key")
	}
}

func TestKeyRepository_TouchLastUsed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	key := newTestKey("app-1", true)
	if err := repo.Create(ctx, key); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.TouchLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("TouchLastUsed failed: %v", err)
	}

	found, err := repo.FindByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if found.LastUsedAt == nil {
		t.Fatal("expected LastUsedAt to be set")
	}
	// updated_atは変更されないこと
	if !found.UpdatedAt.Equal(key.UpdatedAt) {
		t.Error("expected UpdatedAt to be unchanged by TouchLastUsed")
	}
}
