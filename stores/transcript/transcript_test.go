package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"voiceturn/core"
)

func TestSaveWritesHeaderAndMessages(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, core.GetLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	messages := []core.ConversationMessage{
		{Role: core.RoleUser, Content: "what's the weather", Sequence: 0},
		{Role: core.RoleAssistant, Content: "sunny all week", Sequence: 1},
	}
	if err := store.Save(context.Background(), "sess-7", messages); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "sess-7.jsonl"))
	if err != nil {
		t.Fatalf("open transcript: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("missing header line")
	}
	var head header
	if err := json.Unmarshal(scanner.Bytes(), &head); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if head.SessionID != "sess-7" || head.Messages != 2 {
		t.Errorf("header = %+v", head)
	}

	var lines []core.ConversationMessage
	for scanner.Scan() {
		var m core.ConversationMessage
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("decode message line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("message lines = %d, want 2", len(lines))
	}
	if lines[0].Content != "what's the weather" || lines[1].Role != core.RoleAssistant {
		t.Errorf("messages = %+v", lines)
	}
}

func TestSaveEmptyConversation(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, core.GetLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(context.Background(), "sess-empty", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "sess-empty.jsonl"))
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty file; header line expected even with no messages")
	}
}
