package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord(i int, base time.Time) Record {
	conf := 0.9
	return Record{
		ID:             fmt.Sprintf("rec-%02d", i),
		DocumentID:     fmt.Sprintf("doc-%02d", i),
		DocumentType:   "property",
		FileName:       "test.pdf",
		SizeBytes:      5,
		Status:         StatusSucceeded,
		BackendUsed:    "primary",
		Confidence:     &conf,
		Attempts:       1,
		ProcessingTime: 1500 * time.Millisecond,
		CreatedAt:      base.Add(time.Duration(i) * time.Second),
	}
}

func exerciseRepo(t *testing.T, repo Repo) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 8, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, sampleRecord(i, base)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].ID != "rec-04" || got[2].ID != "rec-02" {
		t.Fatalf("expected newest first, got %s..%s", got[0].ID, got[2].ID)
	}
	if got[0].Confidence == nil || *got[0].Confidence != 0.9 {
		t.Fatalf("expected confidence to round-trip")
	}

	all, err := repo.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("list default: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records with default limit, got %d", len(all))
	}
}

func TestMemoryRepo(t *testing.T) {
	exerciseRepo(t, NewMemoryRepo(0))
}

func TestMemoryRepoEvictsOldest(t *testing.T) {
	repo := NewMemoryRepo(2)
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_ = repo.Append(context.Background(), sampleRecord(i, base))
	}
	got, _ := repo.ListRecent(context.Background(), 10)
	if len(got) != 2 || got[1].ID != "rec-01" {
		t.Fatalf("expected oldest record evicted, got %+v", got)
	}
}

func TestBoltRepo(t *testing.T) {
	repo, err := OpenBoltRepo(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	exerciseRepo(t, repo)
}

func TestBoltRepoPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	repo, err := OpenBoltRepo(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.Append(context.Background(), sampleRecord(1, time.Now().UTC())); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenBoltRepo(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "rec-01" {
		t.Fatalf("expected persisted record, got %+v", got)
	}
}

func TestRepoHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryRepo(1).Append(ctx, Record{}); err == nil {
		t.Fatalf("expected context error")
	}
}
