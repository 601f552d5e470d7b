package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecordAndListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	r := NewRecorder(path, zerolog.Nop())

	g1 := &Group{
		ID:        "g-1",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Prompt:    "a cat",
		Strength:  100,
		Images: []Image{
			{Index: 0, Image: "aW1nMQ==", Seed: 11},
			{Index: 1, Image: "aW1nMg==", Seed: 12},
		},
	}
	if err := r.Record(g1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := r.Record(&Group{ID: "g-2", Prompt: "", Images: []Image{{Index: 0, Image: "eA==", Seed: 7}}}); err != nil {
		t.Fatalf("record: %v", err)
	}

	groups, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].ID != "g-1" || len(groups[0].Images) != 2 {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if groups[0].Images[1].Seed != 12 {
		t.Fatalf("seed lost: %+v", groups[0].Images[1])
	}
	if groups[0].Images[0].Applied {
		t.Fatalf("applied must default to false")
	}
	// Empty prompt still yields a group.
	if groups[1].ID != "g-2" {
		t.Fatalf("unexpected second group: %+v", groups[1])
	}
}

func TestListMissingFileIsEmpty(t *testing.T) {
	r := NewRecorder(filepath.Join(t.TempDir(), "nope.jsonl"), zerolog.Nop())
	groups, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if groups != nil {
		t.Fatalf("expected empty history, got %v", groups)
	}
}

func TestListSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	r := NewRecorder(path, zerolog.Nop())
	if err := r.Record(&Group{ID: "g-1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()
	if err := r.Record(&Group{ID: "g-2"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	groups, err := r.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 2 || groups[1].ID != "g-2" {
		t.Fatalf("corrupt line not skipped cleanly: %+v", groups)
	}
}
