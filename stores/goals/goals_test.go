package goals

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voiceturn/core"
)

type fakeExtractor struct {
	summary string
	prompts []string
}

func (f *fakeExtractor) Complete(ctx context.Context, history []core.ConversationMessage) (string, error) {
	f.prompts = append(f.prompts, history[len(history)-1].Content)
	return f.summary, nil
}

func TestSaveExtractsAndWritesGoals(t *testing.T) {
	extractor := &fakeExtractor{summary: "- train three times a week"}
	store, err := NewStore(t.TempDir(), extractor, core.GetLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	messages := []core.ConversationMessage{
		{Role: core.RoleUser, Content: "I want to make the first team", Sequence: 0},
		{Role: core.RoleAssistant, Content: "Let's build a plan", Sequence: 1},
	}
	if err := store.Save(context.Background(), "sess-1", messages); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(extractor.prompts) != 1 {
		t.Fatalf("extractor called %d times, want 1", len(extractor.prompts))
	}
	if !strings.Contains(extractor.prompts[0], "I want to make the first team") {
		t.Error("prompt missing the user's message")
	}
	if !strings.Contains(extractor.prompts[0], "[ASSISTANT]:") {
		t.Error("prompt missing the assistant turn")
	}

	data, err := os.ReadFile(filepath.Join(store.dir, "sess-1-goals.json"))
	if err != nil {
		t.Fatalf("read goals file: %v", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode goals file: %v", err)
	}
	if rec.SessionID != "sess-1" || rec.Goals != extractor.summary {
		t.Errorf("record = %+v", rec)
	}
}

func TestSaveSkipsEmptyConversation(t *testing.T) {
	extractor := &fakeExtractor{summary: "unused"}
	dir := t.TempDir()
	store, err := NewStore(dir, extractor, core.GetLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save(context.Background(), "sess-2", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(extractor.prompts) != 0 {
		t.Errorf("extractor called %d times, want 0", len(extractor.prompts))
	}
	if _, err := os.Stat(filepath.Join(dir, "sess-2-goals.json")); !os.IsNotExist(err) {
		t.Error("goals file written for empty conversation")
	}
}
