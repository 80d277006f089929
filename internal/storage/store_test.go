package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []UsageRecord{
		{ID: "a", Service: "openai", Kind: "openai", RequestedModel: "gpt-4", ServedModel: "gpt-4", Status: "ok", Duration: 2 * time.Second, PromptTokens: 10, CompletionTokens: 20, CreatedAt: base},
		{ID: "b", Service: "ollama", Kind: "local", RequestedModel: "llama", ServedModel: "llama", Streaming: true, Status: "disconnected", Duration: time.Second, CreatedAt: base.Add(time.Minute)},
	}
	for _, rec := range records {
		if err := s.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage(%s): %v", rec.ID, err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("newest first: got %q", got[0].ID)
	}
	if got[1].PromptTokens != 10 || got[1].CompletionTokens != 20 {
		t.Errorf("token counts lost: %+v", got[1])
	}
	if !got[0].Streaming || got[0].Status != "disconnected" {
		t.Errorf("streaming record mangled: %+v", got[0])
	}
	if got[1].Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", got[1].Duration)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		rec := UsageRecord{
			ID: string(rune('a' + i)), Service: "svc", Kind: "custom",
			RequestedModel: "m", ServedModel: "m", Status: "ok",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("rows = %d, want 3", len(got))
	}
}
