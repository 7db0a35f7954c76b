package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"portraitgen/internal/domain"
	"portraitgen/internal/sqlinline"
)

func TestCandidateRepositoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQL()
	ledger := NewCandidateRepository(stub)

	first, err := ledger.Upsert(ctx, domain.Candidate{ResultID: "r1", SlotIndex: 0, ArtifactURL: "https://cdn/a.png", PromptText: "p1"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := ledger.Upsert(ctx, domain.Candidate{ResultID: "r1", SlotIndex: 0, ArtifactURL: "https://cdn/b.png", PromptText: "p2"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same row id, got %s and %s", first.ID, second.ID)
	}
	if !second.IsPrimary {
		t.Fatalf("slot 0 must be primary")
	}

	rows, err := ledger.ListByResult(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].ArtifactURL != "https://cdn/b.png" || rows[0].PromptText != "p2" {
		t.Fatalf("latest write should win: %+v", rows[0])
	}
}

func TestCandidateRepositoryListOrdersBySlot(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQL()
	ledger := NewCandidateRepository(stub)
	for _, slot := range []int{2, 0, 1} {
		if _, err := ledger.Upsert(ctx, domain.Candidate{ResultID: "r1", SlotIndex: slot, ArtifactURL: "u"}); err != nil {
			t.Fatalf("upsert %d: %v", slot, err)
		}
	}
	if _, err := ledger.Upsert(ctx, domain.Candidate{ResultID: "other", SlotIndex: 0, ArtifactURL: "u"}); err != nil {
		t.Fatalf("upsert other: %v", err)
	}
	rows, err := ledger.ListByResult(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for i, row := range rows {
		if row.SlotIndex != i {
			t.Fatalf("rows[%d].SlotIndex = %d", i, row.SlotIndex)
		}
		if row.IsPrimary != (i == 0) {
			t.Fatalf("rows[%d].IsPrimary = %v", i, row.IsPrimary)
		}
	}
}

func TestCandidateRepositoryPassesCreatedAt(t *testing.T) {
	stub := newStubSQL()
	ledger := NewCandidateRepository(stub)
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	got, err := ledger.Upsert(context.Background(), domain.Candidate{ResultID: "r1", SlotIndex: 1, ArtifactURL: "u", CreatedAt: at})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, at)
	}
}

func TestCandidateRepositoryRejectsRowWithoutURL(t *testing.T) {
	stub := newStubSQL()
	ledger := NewCandidateRepository(stub)
	if _, err := ledger.Upsert(context.Background(), domain.Candidate{ResultID: "r1", SlotIndex: 0}); err == nil {
		t.Fatalf("expected error for missing artifact url")
	}
	if len(stub.queries) != 0 {
		t.Fatalf("no query should be issued, got %v", stub.queries)
	}
}

func TestCandidateRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	stub := newStubSQL()
	ledger := NewCandidateRepository(stub)
	for slot := 0; slot < 3; slot++ {
		if _, err := ledger.Upsert(ctx, domain.Candidate{ResultID: "r1", SlotIndex: slot, ArtifactURL: "u"}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	n, err := ledger.DeleteByResult(ctx, "r1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	last := stub.queries[len(stub.queries)-1]
	if want := markerOf(t, sqlinline.QDeleteCandidatesByResult); last != want {
		t.Fatalf("last query marker = %s, want %s", last, want)
	}
}

func TestCandidateRepositoryWrapsErrors(t *testing.T) {
	stub := newStubSQL()
	stub.failAll = errors.New("connection reset")
	ledger := NewCandidateRepository(stub)
	if _, err := ledger.ListByResult(context.Background(), "r1"); !errors.Is(err, stub.failAll) {
		t.Fatalf("err = %v, want wrapped connection reset", err)
	}
}

func TestPromptSourceLookup(t *testing.T) {
	stub := newStubSQL()
	stub.prompt["r1"] = [2]string{"  forest guardian portrait  ", "Forest"}
	src := NewPromptSource(stub)

	prompt, err := src.PromptFor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("PromptFor: %v", err)
	}
	if prompt != "forest guardian portrait" {
		t.Fatalf("prompt = %q", prompt)
	}
	profile, err := src.ProfileFor(context.Background(), "r1")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	if profile.TribeName != "Forest" || profile.ResultID != "r1" {
		t.Fatalf("profile = %+v", profile)
	}
	if _, err := src.PromptFor(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunRepositoryGetMissing(t *testing.T) {
	runs := NewRunRepository(newStubSQL())
	if _, err := runs.Get(context.Background(), "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func markerOf(t *testing.T, q string) string {
	t.Helper()
	// first line is "--sql <uuid>"
	for i := 0; i < len(q); i++ {
		if q[i] == '\n' {
			return q[len("--sql "):i]
		}
	}
	t.Fatalf("query without newline")
	return ""
}
