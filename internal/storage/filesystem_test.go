package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStoreUploadReturnsPublicURL(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := store.Upload(context.Background(), "portraits/r1/1-0.png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "http://localhost:8080/static/portraits/r1/1-0.png" {
		t.Fatalf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "portraits", "r1", "1-0.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("stored data = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "portraits", "r1", "1-0.png.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file should be gone")
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, key := range []string{"../escape.png", "a/../../b.png", "", "."} {
		if _, err := store.Upload(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestFileStoreRejectsEmptyData(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "http://x")
	if _, err := store.Upload(context.Background(), "a.png", nil); err == nil {
		t.Fatalf("expected error for empty artifact")
	}
}

func TestFileStoreHonorsCanceledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "http://x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Upload(ctx, "a.png", []byte("x")); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestArtifactKeyIsUniquePerSlot(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	a := ArtifactKey("r1", at, 0, "image/png")
	b := ArtifactKey("r1", at, 1, "image/jpeg")
	if a == b {
		t.Fatalf("keys must differ across slots")
	}
	if a != "portraits/r1/1700000000123-0.png" {
		t.Fatalf("key = %q", a)
	}
	if !strings.HasSuffix(b, ".jpg") {
		t.Fatalf("key = %q, want .jpg", b)
	}
}
