package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestHandoffService(t *testing.T, client CompletionClient) *HandoffService {
	t.Helper()
	cfg := DefaultConfig()
	h := NewHandoffService(cfg, t.TempDir(), client, NewLogger(nil))
	h.Credential = func(Config, ModelInfo) string { return "test-key" }
	return h
}

func writeTranscript(t *testing.T, root, sessionID string, msgs []TranscriptMessage) {
	t.Helper()
	store := NewTranscriptStore(root)
	for i := range msgs {
		msgs[i].SessionID = sessionID
		if err := store.AppendMessage(msgs[i]); err != nil {
			t.Fatalf("append message: %v", err)
		}
	}
}

func TestExtractTranscriptTextSystemOnly(t *testing.T) {
	msgs := []TranscriptMessage{
		{Role: RoleSystem, Text: "you are a helpful assistant"},
		{Role: RoleSystem, Text: "another instruction"},
	}
	if got := ExtractTranscriptText(msgs); got != "" {
		t.Fatalf("expected empty extraction, got %q", got)
	}
}

func TestExtractTranscriptTextSkipsEmptyMessages(t *testing.T) {
	msgs := []TranscriptMessage{
		{Role: RoleUser, Text: "   "},
		{Role: RoleAssistant},
		{Role: RoleUser, Text: "hello"},
	}
	got := ExtractTranscriptText(msgs)
	if got != "[user]: hello" {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestExtractTranscriptTextSingleMessageTruncation(t *testing.T) {
	long := strings.Repeat("a", handoffMaxMessageChars+500)
	msgs := []TranscriptMessage{{Role: RoleUser, Text: long}}

	got := ExtractTranscriptText(msgs)
	if !strings.HasSuffix(got, messageTruncMarker) {
		t.Fatalf("expected truncation marker suffix, got tail %q", got[len(got)-40:])
	}
	wantLen := len("[user]: ") + handoffMaxMessageChars + len(messageTruncMarker)
	if len(got) != wantLen {
		t.Fatalf("extracted line length = %d, want %d", len(got), wantLen)
	}
}

func TestExtractTranscriptTextMiddleTruncation(t *testing.T) {
	// ~40 messages of ~4.9k chars each comfortably exceeds the total cap
	// without tripping per-message truncation.
	msgs := make([]TranscriptMessage, 0, 40)
	for i := 0; i < 40; i++ {
		msgs = append(msgs, TranscriptMessage{Role: RoleUser, Text: strings.Repeat("x", 4900)})
	}

	got := ExtractTranscriptText(msgs)
	if len(got) > handoffMaxTranscriptChars+len(middleTruncMarker) {
		t.Fatalf("extraction too long: %d", len(got))
	}
	marker := "... [middle of conversation truncated for length] ..."
	if n := strings.Count(got, marker); n != 1 {
		t.Fatalf("middle truncation marker count = %d, want 1", n)
	}
}

func TestExtractTranscriptTextBlocks(t *testing.T) {
	msgs := []TranscriptMessage{
		{Role: RoleAssistant, Blocks: []ContentBlock{
			{Kind: BlockText, Text: "first"},
			{Kind: BlockToolCall, ToolName: "read_file", ToolArgs: []byte(`{"path":"/etc/passwd"}`)},
			{Kind: BlockToolResult, Text: "huge tool payload that must not leak"},
			{Kind: BlockOutputText, Text: "second"},
		}},
	}
	got := ExtractTranscriptText(msgs)
	want := "[assistant]: first\n[tool call: read_file]\nsecond"
	if got != want {
		t.Fatalf("block extraction = %q, want %q", got, want)
	}
	if strings.Contains(got, "/etc/passwd") {
		t.Fatalf("tool arguments leaked into extraction")
	}
}

func TestSelectHandoffModelOrderPreserving(t *testing.T) {
	h := newTestHandoffService(t, NewMockCompletionClient())

	var probed []string
	h.Resolve = func(ref ModelRef) (ModelInfo, bool) {
		probed = append(probed, ref.String())
		// Only the third candidate (claude-haiku-4-5) resolves.
		if len(probed) == 3 {
			return ModelInfo{Ref: ref}, true
		}
		return ModelInfo{}, false
	}

	info, key, err := h.SelectHandoffModel(h.Config)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if key != "test-key" {
		t.Fatalf("unexpected key %q", key)
	}
	if info.Ref.String() != "anthropic/claude-haiku-4-5" {
		t.Fatalf("selected %s, want anthropic/claude-haiku-4-5", info.Ref)
	}
	if len(probed) != 3 {
		t.Fatalf("probed %d candidates, want 3 (no probing past the match): %v", len(probed), probed)
	}
}

func TestSelectHandoffModelExhaustionListsAllCandidates(t *testing.T) {
	h := newTestHandoffService(t, NewMockCompletionClient())
	h.Credential = func(Config, ModelInfo) string { return "" }

	_, _, err := h.SelectHandoffModel(h.Config)
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	want := []string{
		"anthropic/claude-sonnet-4-5",
		"anthropic/claude-haiku-4-5",
		"google/gemini-2.0-flash",
		"openai/gpt-4o-mini",
	}
	last := -1
	for _, ref := range want {
		i := strings.Index(msg, ref)
		if i < 0 {
			t.Fatalf("error missing candidate %s: %s", ref, msg)
		}
		if i < last {
			t.Fatalf("candidates out of order in error: %s", msg)
		}
		last = i
	}
}

func TestPerformSessionHandoffEmptySession(t *testing.T) {
	mock := NewMockCompletionClient()
	h := newTestHandoffService(t, mock)

	result, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{SessionID: "nope"})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if result.MessageCount != 0 {
		t.Fatalf("message count = %d, want 0", result.MessageCount)
	}
	if result.Summary == "" {
		t.Fatalf("expected canned summary")
	}
	if result.SummaryPath != "" || result.ArchivedTranscriptPath != "" {
		t.Fatalf("empty session must not write files: %+v", result)
	}
	if mock.Calls() != 0 {
		t.Fatalf("completion API called %d times for empty session", mock.Calls())
	}
}

func TestPerformSessionHandoffRoundTrip(t *testing.T) {
	mock := NewMockCompletionClient()
	mock.Reply = "1. Objective — finish the thing.\n2. Current state — halfway."
	h := newTestHandoffService(t, mock)

	writeTranscript(t, h.Root, "sess-1", []TranscriptMessage{
		{Role: RoleUser, Text: "help me finish the thing"},
		{Role: RoleAssistant, Text: "sure, here is a plan"},
	})

	result, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{
		SessionKey: "default:sess-1",
		SessionID:  "sess-1",
	})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if result.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", result.MessageCount)
	}
	if result.Summary != mock.Reply {
		t.Fatalf("summary = %q", result.Summary)
	}
	if result.ArchivedTranscriptPath == "" {
		t.Fatalf("expected archived transcript path")
	}

	// Archive is a byte-for-byte copy of the source transcript.
	src, err := os.ReadFile(filepath.Join(h.Root, "sessions", "sess-1.jsonl"))
	if err != nil {
		t.Fatalf("read source transcript: %v", err)
	}
	archived, err := os.ReadFile(result.ArchivedTranscriptPath)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(src) != string(archived) {
		t.Fatalf("archive differs from source transcript")
	}

	content, ok := h.ReadHandoffSummary("sess-1")
	if !ok {
		t.Fatalf("summary not readable after handoff")
	}
	if HandoffSummaryBody(content) != mock.Reply {
		t.Fatalf("summary body = %q, want %q", HandoffSummaryBody(content), mock.Reply)
	}

	infos, err := h.ListHandoffSummaries()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) == 0 || infos[0].SessionID != "sess-1" {
		t.Fatalf("expected sess-1 as most recent summary, got %+v", infos)
	}

	latest, sessionID, ok := h.ReadLatestHandoffSummary()
	if !ok || sessionID != "sess-1" || latest != content {
		t.Fatalf("latest lookup mismatch: ok=%v session=%s", ok, sessionID)
	}
}

func TestPerformSessionHandoffArchiveFailureIsNonFatal(t *testing.T) {
	mock := NewMockCompletionClient()
	mock.Reply = "summary text"
	h := newTestHandoffService(t, mock)

	writeTranscript(t, h.Root, "sess-2", []TranscriptMessage{
		{Role: RoleUser, Text: "hello"},
	})
	// Make the archive destination unwritable by occupying it with a directory.
	dst := filepath.Join(h.Root, handoffDirName, "sess-2.transcript.jsonl")
	if err := os.MkdirAll(dst, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	result, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{SessionID: "sess-2"})
	if err != nil {
		t.Fatalf("handoff should not fail on archive error: %v", err)
	}
	if result.ArchivedTranscriptPath != "" {
		t.Fatalf("expected empty archive path, got %s", result.ArchivedTranscriptPath)
	}
	if result.SummaryPath == "" {
		t.Fatalf("expected summary path")
	}
	if _, ok := h.ReadHandoffSummary("sess-2"); !ok {
		t.Fatalf("summary missing after archive failure")
	}
}

func TestPerformSessionHandoffNoUsableModel(t *testing.T) {
	mock := NewMockCompletionClient()
	h := newTestHandoffService(t, mock)
	h.Credential = func(Config, ModelInfo) string { return "" }

	writeTranscript(t, h.Root, "sess-3", []TranscriptMessage{
		{Role: RoleUser, Text: "hello"},
	})

	_, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{SessionID: "sess-3"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if mock.Calls() != 0 {
		t.Fatalf("completion API must not be called without a usable model")
	}
	if _, ok := h.ReadHandoffSummary("sess-3"); ok {
		t.Fatalf("no summary should be written on model selection failure")
	}
}

func TestPerformSessionHandoffEmptyModelReply(t *testing.T) {
	mock := NewMockCompletionClient()
	mock.Reply = " " // whitespace only; trims to nothing
	h := newTestHandoffService(t, mock)

	writeTranscript(t, h.Root, "sess-4", []TranscriptMessage{
		{Role: RoleUser, Text: "hello"},
	})

	_, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{SessionID: "sess-4"})
	if err == nil || !strings.Contains(err.Error(), "no usable text") {
		t.Fatalf("expected empty-reply error, got %v", err)
	}
}

func TestPerformSessionHandoffTimeout(t *testing.T) {
	mock := NewMockCompletionClient()
	mock.Block = true
	h := newTestHandoffService(t, mock)
	h.Timeout = 50 * time.Millisecond

	writeTranscript(t, h.Root, "sess-5", []TranscriptMessage{
		{Role: RoleUser, Text: "hello"},
	})

	start := time.Now()
	_, err := h.PerformSessionHandoff(context.Background(), HandoffRequest{SessionID: "sess-5"})
	elapsed := time.Since(start)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("handoff took %v, expected prompt failure after ~50ms timeout", elapsed)
	}
}

func TestHandoffSummaryBody(t *testing.T) {
	file := renderSummaryFile("s1", "agent:s1", "anthropic/claude-haiku-4-5", 7, "the body\nsecond line", time.Now())
	if got := HandoffSummaryBody(file); got != "the body\nsecond line" {
		t.Fatalf("body = %q", got)
	}
	// Content without a header passes through trimmed.
	if got := HandoffSummaryBody("  plain  "); got != "plain" {
		t.Fatalf("plain body = %q", got)
	}
}

func TestListHandoffSummariesSkipsNonSummaryFiles(t *testing.T) {
	h := newTestHandoffService(t, NewMockCompletionClient())
	dir := filepath.Join(h.Root, handoffDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.transcript.jsonl"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	infos, err := h.ListHandoffSummaries()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].SessionID != "a" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}
