package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTranscriptStoreAppendAndRead(t *testing.T) {
	store := NewTranscriptStore(t.TempDir())

	msgs := []TranscriptMessage{
		{SessionID: "s1", Role: RoleUser, Text: "hello", CreatedAt: time.Now()},
		{SessionID: "s1", Role: RoleAssistant, Blocks: []ContentBlock{
			{Kind: BlockText, Text: "hi"},
			{Kind: BlockToolCall, ToolName: "search"},
		}, CreatedAt: time.Now()},
	}
	for _, m := range msgs {
		if err := store.AppendMessage(m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.ReadSessionMessages("s1", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Text != "hello" || got[0].Role != RoleUser {
		t.Fatalf("first message mismatch: %+v", got[0])
	}
	if len(got[1].Blocks) != 2 || got[1].Blocks[1].Kind != BlockToolCall {
		t.Fatalf("block content not preserved: %+v", got[1])
	}
}

func TestTranscriptStoreMissingSessionIsEmpty(t *testing.T) {
	store := NewTranscriptStore(t.TempDir())
	msgs, err := store.ReadSessionMessages("absent", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty session, got %d messages", len(msgs))
	}
}

func TestTranscriptStoreSkipsMalformedLines(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	raw := `{"role":"user","content":"first"}
not json at all
{"role":"assistant","content":{"bad":"shape"}}
{"role":"user","content":[{"type":"text","text":"second"}]}
`
	if err := os.WriteFile(filepath.Join(dir, "s1.jsonl"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewTranscriptStore(root)
	msgs, err := store.ReadSessionMessages("s1", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Object-shaped content degrades to an empty message, not an error.
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Text != "first" {
		t.Fatalf("first = %q", msgs[0].Text)
	}
	if msgs[1].Text != "" || len(msgs[1].Blocks) != 0 {
		t.Fatalf("malformed content should degrade to empty: %+v", msgs[1])
	}
	if len(msgs[2].Blocks) != 1 || msgs[2].Blocks[0].Text != "second" {
		t.Fatalf("block line mismatch: %+v", msgs[2])
	}
}

func TestTranscriptCandidatesOrder(t *testing.T) {
	store := NewTranscriptStore("/data/agent")

	cands := store.TranscriptCandidates("abc", "/tmp/pinned.jsonl")
	if len(cands) != 4 {
		t.Fatalf("got %d candidates: %v", len(cands), cands)
	}
	if cands[0] != "/tmp/pinned.jsonl" {
		t.Fatalf("pinned file must be probed first: %v", cands)
	}
	if cands[1] != filepath.Join("/data/agent", "sessions", "abc.jsonl") {
		t.Fatalf("unexpected primary path: %v", cands)
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]Role{
		"User":        RoleUser,
		" assistant ": RoleAssistant,
		"tool-result": RoleTool,
		"tool_result": RoleTool,
		"SYSTEM":      RoleSystem,
		"other":       Role("other"),
	}
	for in, want := range cases {
		if got := normalizeRole(in); got != want {
			t.Fatalf("normalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}
