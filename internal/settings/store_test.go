package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/database"
	"github.com/nerrad567/stream-lights-core/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteStore(db.DB)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), KeyAppKey)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_SetGetOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyBridgeIP, "192.168.1.20"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(ctx, KeyBridgeIP, "192.168.1.21"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, err := store.Get(ctx, KeyBridgeIP)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "192.168.1.21" {
		t.Errorf("Get() = %q, want %q", got, "192.168.1.21")
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyAccessToken, "tok"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, KeyAccessToken); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
	if _, err := store.Get(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestGetOrAndSetAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := GetOr(ctx, store, KeyBridgeID, "fallback")
	if err != nil {
		t.Fatalf("GetOr() error = %v", err)
	}
	if got != "fallback" {
		t.Errorf("GetOr() = %q, want %q", got, "fallback")
	}

	err = SetAll(ctx, store, map[string]string{
		KeyAppKey:    "app-key",
		KeyClientKey: "client-key",
	})
	if err != nil {
		t.Fatalf("SetAll() error = %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{KeyAppKey, "app-key"},
		{KeyClientKey, "client-key"},
	}
	for _, tt := range tests {
		got, err := GetOr(ctx, store, tt.key, "")
		if err != nil {
			t.Fatalf("GetOr(%s) error = %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("GetOr(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
