package storage

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/ramonehamilton/gammatrain/internal/extract"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func collect(t *testing.T, repo *MatchRepository) []*extract.Record {
	t.Helper()
	var out []*extract.Record
	for rec, err := range repo.Records(context.Background()) {
		if err != nil {
			t.Fatalf("Records failed: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestMatchRepository_SaveAndStream(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := db.Matches()

	input := []*extract.Record{
		{Candidates: [][]string{{"b", "a", "b"}, {}, {"c"}}, Chosen: 2, Weight: 0.5},
		{Candidates: [][]string{{"a"}, {"c"}}, Chosen: 0},
	}
	if err := repo.Save(ctx, "games.jsonl", input...); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 matches, got %d (%v)", n, err)
	}

	got := collect(t, repo)
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
	first := got[0]
	if len(first.Candidates) != 3 || first.Chosen != 2 || first.Weight != 0.5 {
		t.Errorf("Unexpected first record %+v", first)
	}
	if !slices.Equal(first.Candidates[0], []string{"a", "b", "b"}) {
		t.Errorf("Expected sorted names with repetition, got %v", first.Candidates[0])
	}
	if len(first.Candidates[1]) != 0 {
		t.Errorf("Expected an empty candidate, got %v", first.Candidates[1])
	}
	if got[1].Weight != 1 {
		t.Errorf("Expected default weight 1, got %g", got[1].Weight)
	}

	counts, err := repo.FeatureCounts(ctx, 0)
	if err != nil {
		t.Fatalf("FeatureCounts failed: %v", err)
	}
	if len(counts) != 3 || counts[0] != (FeatureCount{Feature: "a", Matches: 2, Degree: 2}) {
		t.Errorf("Unexpected feature counts %+v", counts)
	}
}

func TestMatchRepository_SaveIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Matches().Save(ctx, "bad",
		&extract.Record{Candidates: [][]string{{"a"}, {"b"}}, Chosen: 0},
		&extract.Record{Candidates: [][]string{{"a"}, {"b"}}, Chosen: 4},
	)
	if err == nil {
		t.Fatal("Expected an error for an out of range winner")
	}
	if n, _ := db.Matches().Count(ctx); n != 0 {
		t.Errorf("Expected the failed batch to be rolled back, found %d matches", n)
	}
}

func TestMatchRepository_DeleteSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := db.Matches()

	rec := &extract.Record{Candidates: [][]string{{"a"}, {"b"}}}
	if err := repo.Save(ctx, "one", rec, rec); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, "two", rec); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.DeleteSource(ctx, "one")
	if err != nil || deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d (%v)", deleted, err)
	}
	if got := collect(t, repo); len(got) != 1 {
		t.Errorf("Expected 1 remaining record, got %d", len(got))
	}
}

func TestRunRepository_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runs := db.Runs()

	run, err := runs.Start(ctx, "strength", 120, 40)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(run.ID) != 36 || run.Status != RunRunning {
		t.Fatalf("Unexpected run %+v", run)
	}

	for i := 1; i <= 3; i++ {
		p := Pass{Pass: i, LogLikelihood: -10 / float64(i), Accepted: i, Rejected: 3 - i, Duration: 1500 * time.Microsecond}
		if err := runs.AddPass(ctx, run.ID, p); err != nil {
			t.Fatalf("AddPass failed: %v", err)
		}
	}
	if err := runs.Finish(ctx, run.ID, 3, -20, -3.33, "weights.txt"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := runs.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != RunFinished || got.Iterations != 3 || got.FinalLogLikelihood != -3.33 || got.FinishedAt == nil {
		t.Errorf("Unexpected finished run %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("StartedAt changed: %v vs %v", got.StartedAt, run.StartedAt)
	}

	passes, err := runs.Passes(ctx, run.ID)
	if err != nil {
		t.Fatalf("Passes failed: %v", err)
	}
	if len(passes) != 3 || passes[2].Accepted != 3 || passes[0].Duration != 1500*time.Microsecond {
		t.Errorf("Unexpected passes %+v", passes)
	}
}

func TestRunRepository_FailAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runs := db.Runs()

	a, err := runs.Start(ctx, "strength", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := runs.Start(ctx, "baseline", 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := runs.Fail(ctx, a.ID, errors.New("cancelled")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	list, err := runs.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Fatalf("Expected newest run first, got %+v", list)
	}
	if list[1].Status != RunFailed || list[1].Error != "cancelled" {
		t.Errorf("Unexpected failed run %+v", list[1])
	}

	if limited, _ := runs.List(ctx, 1); len(limited) != 1 {
		t.Errorf("Expected 1 run with limit, got %d", len(limited))
	}

	if _, err := runs.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := runs.Finish(ctx, "missing", 0, 0, 0, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on Finish, got %v", err)
	}
}
