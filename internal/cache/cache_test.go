package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"llmbridge/internal/core"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Version:   SnapshotVersion,
		UpdatedAt: time.Now().UTC(),
		Catalogs: map[string][]core.ModelDescriptor{
			"ollama": {
				{ID: "llama3.1:8b", DisplayName: "llama3.1:8b", ContextLength: 128000},
			},
		},
	}
}

func TestLocalStore(t *testing.T) {
	t.Run("GetSetRoundTrip", func(t *testing.T) {
		cacheFile := filepath.Join(t.TempDir(), "catalogs.json")
		store := NewLocalStore(cacheFile)
		ctx := context.Background()

		result, err := store.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Fatalf("expected nil for missing cache, got %v", result)
		}

		if err := store.Set(ctx, testSnapshot()); err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}

		result, err = store.Get(ctx)
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if result == nil {
			t.Fatal("expected snapshot, got nil")
		}
		models := result.Catalogs["ollama"]
		if len(models) != 1 || models[0].ID != "llama3.1:8b" {
			t.Errorf("catalogs = %+v, want the stored ollama models", result.Catalogs)
		}
	})

	t.Run("EmptyPathDisablesPersistence", func(t *testing.T) {
		store := NewLocalStore("")
		ctx := context.Background()

		if err := store.Set(ctx, testSnapshot()); err != nil {
			t.Fatalf("set with empty path must be a no-op, got %v", err)
		}
		result, err := store.Get(ctx)
		if err != nil || result != nil {
			t.Fatalf("get with empty path = %v, %v, want nil, nil", result, err)
		}
	})

	t.Run("VersionMismatchTreatedAsAbsent", func(t *testing.T) {
		cacheFile := filepath.Join(t.TempDir(), "catalogs.json")
		if err := os.WriteFile(cacheFile, []byte(`{"version": 999, "catalogs": {}}`), 0o644); err != nil {
			t.Fatal(err)
		}

		result, err := NewLocalStore(cacheFile).Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != nil {
			t.Error("an unknown snapshot version must read as absent")
		}
	})

	t.Run("CorruptFileIsAnError", func(t *testing.T) {
		cacheFile := filepath.Join(t.TempDir(), "catalogs.json")
		if err := os.WriteFile(cacheFile, []byte("not json"), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := NewLocalStore(cacheFile).Get(context.Background()); err == nil {
			t.Error("corrupt cache content must surface as an error")
		}
	})

	t.Run("AtomicWriteLeavesNoTempFile", func(t *testing.T) {
		dir := t.TempDir()
		cacheFile := filepath.Join(dir, "catalogs.json")
		store := NewLocalStore(cacheFile)

		if err := store.Set(context.Background(), testSnapshot()); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(cacheFile + ".tmp"); !os.IsNotExist(err) {
			t.Error("temp file must be renamed away after a successful set")
		}
	})
}
