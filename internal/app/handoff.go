package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	handoffDirName = "session-handoffs"

	// Extraction bounds. A single message is capped so one giant paste cannot
	// dominate the summary input; the whole transcript keeps its first and
	// last halves because the opening context and the latest state matter
	// most for continuity.
	handoffMaxMessageChars    = 5000
	handoffMaxTranscriptChars = 150_000

	messageTruncMarker = "... [truncated]"
	middleTruncMarker  = "\n... [middle of conversation truncated for length] ...\n"

	handoffMaxTokens   = 4096
	handoffTemperature = 0.2

	defaultHandoffTimeout = 120 * time.Second

	emptySessionSummary = "This session contained no conversation to summarize. Start fresh."
)

const handoffInstructions = `You are preparing a session handoff summary so a new session can continue this work seamlessly.

Write a structured summary with exactly these seven sections:
1. Objective — what the user is trying to accomplish overall.
2. Current state — what has been done so far and what is in progress.
3. Key decisions — choices made and why, including rejected alternatives.
4. Files and artifacts — paths, resources, or outputs touched or produced.
5. Next steps — the concrete actions the next session should take first.
6. Constraints and preferences — requirements, style, or tooling the user expressed.
7. Open questions — anything unresolved that the next session should clarify.

Keep the whole summary under 2000 words. Never include secret values such as API keys, tokens, or passwords, even if they appear in the transcript; refer to them by name only.

The transcript follows between the tags.`

// HandoffRequest identifies the session to summarize. StorePath overrides the
// transcript store root; SessionFile pins an exact transcript file.
type HandoffRequest struct {
	SessionKey  string
	SessionID   string
	StorePath   string
	SessionFile string
	Config      *Config
}

// HandoffResult is immutable once returned. ArchivedTranscriptPath is empty
// when the source transcript could not be located or copied; that is not an
// error.
type HandoffResult struct {
	Summary                string `json:"summary"`
	ArchivedTranscriptPath string `json:"archived_transcript_path,omitempty"`
	SummaryPath            string `json:"summary_path,omitempty"`
	MessageCount           int    `json:"message_count"`
	LatencyMs              int64  `json:"latency_ms"`
	Model                  string `json:"model,omitempty"`
}

type HandoffSummaryInfo struct {
	SessionID string    `json:"session_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// HandoffService turns a finished session into a continuity summary: read the
// transcript, ask a model for a structured summary, archive the raw
// transcript, and persist the summary under <root>/session-handoffs/.
type HandoffService struct {
	Root    string
	Config  Config
	Logger  *Logger
	Client  CompletionClient
	Timeout time.Duration

	// Resolve and Credential are swappable for tests; they default to the
	// catalog and environment lookups.
	Resolve    func(ModelRef) (ModelInfo, bool)
	Credential func(Config, ModelInfo) string
}

func NewHandoffService(cfg Config, root string, client CompletionClient, logger *Logger) *HandoffService {
	if strings.TrimSpace(root) == "" {
		root = DefaultAgentRoot(cfg.AgentID)
	}
	timeout := defaultHandoffTimeout
	if cfg.HandoffTimeoutSec > 0 {
		timeout = time.Duration(cfg.HandoffTimeoutSec) * time.Second
	}
	return &HandoffService{
		Root:       root,
		Config:     cfg,
		Logger:     logger,
		Client:     client,
		Timeout:    timeout,
		Resolve:    ResolveModel,
		Credential: LookupCredential,
	}
}

func (h *HandoffService) handoffDir() string {
	return filepath.Join(h.Root, handoffDirName)
}

// ExtractTranscriptText flattens a transcript into bounded plain text for the
// summary model. System messages are skipped, tool-call blocks become a
// one-line placeholder, and both per-message and total size are capped. It
// never fails; malformed messages degrade to empty text and are dropped.
func ExtractTranscriptText(msgs []TranscriptMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == RoleSystem {
			continue
		}
		text := strings.TrimSpace(messageText(msg))
		if text == "" {
			continue
		}
		if len(text) > handoffMaxMessageChars {
			text = text[:handoffMaxMessageChars] + messageTruncMarker
		}
		role := string(msg.Role)
		if role == "" {
			role = "unknown"
		}
		lines = append(lines, "["+role+"]: "+text)
	}

	joined := strings.Join(lines, "\n\n")
	if len(joined) > handoffMaxTranscriptChars {
		half := handoffMaxTranscriptChars / 2
		joined = joined[:half] + middleTruncMarker + joined[len(joined)-half:]
	}
	return joined
}

// TranscriptMessageText flattens one message to display text, applying the
// same block rules as extraction (text blocks plus tool-call placeholders).
func TranscriptMessageText(msg TranscriptMessage) string {
	return messageText(msg)
}

func messageText(msg TranscriptMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	if len(msg.Blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(msg.Blocks))
	for _, block := range msg.Blocks {
		switch {
		case block.Kind.IsTextKind():
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case block.Kind == BlockToolCall:
			name := strings.TrimSpace(block.ToolName)
			if name == "" {
				name = "unknown"
			}
			parts = append(parts, "[tool call: "+name+"]")
		}
		// Tool-result payloads are skipped; they are large and the model
		// already narrates their outcome in its own turns.
	}
	return strings.Join(parts, "\n")
}

// SelectHandoffModel walks the candidate list in order and returns the first
// model with both a catalog entry and a non-empty credential. Failures inside
// the loop stay silent; only total exhaustion is reported, with every
// attempted pair and the reason it was rejected.
func (h *HandoffService) SelectHandoffModel(cfg Config) (ModelInfo, string, error) {
	resolve := h.Resolve
	if resolve == nil {
		resolve = ResolveModel
	}
	credential := h.Credential
	if credential == nil {
		credential = LookupCredential
	}

	attempts := make([]string, 0, 5)
	for _, ref := range HandoffCandidates(cfg) {
		info, ok := resolve(ref)
		if !ok {
			attempts = append(attempts, ref.String()+" (unknown model)")
			continue
		}
		key := strings.TrimSpace(credential(cfg, info))
		if key == "" {
			attempts = append(attempts, ref.String()+" (no credential)")
			continue
		}
		return info, key, nil
	}
	return ModelInfo{}, "", fmt.Errorf("no usable model for session handoff (tried: %s)", strings.Join(attempts, ", "))
}

// PerformSessionHandoff runs the whole pipeline. An empty session returns a
// canned result without touching the model or the filesystem. A failed
// transcript archive is non-fatal; a failed summary write fails the handoff.
func (h *HandoffService) PerformSessionHandoff(ctx context.Context, req HandoffRequest) (*HandoffResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, errors.New("missing sessionID")
	}
	cfg := h.Config
	if req.Config != nil {
		cfg = *req.Config
	}

	storeRoot := strings.TrimSpace(req.StorePath)
	if storeRoot == "" {
		storeRoot = h.Root
	}
	store := NewTranscriptStore(storeRoot)

	msgs, err := store.ReadSessionMessages(sessionID, req.SessionFile)
	if err != nil {
		return nil, fmt.Errorf("read session transcript: %w", err)
	}
	text := ExtractTranscriptText(msgs)
	if len(msgs) == 0 || strings.TrimSpace(text) == "" {
		return &HandoffResult{
			Summary:      emptySessionSummary,
			MessageCount: len(msgs),
		}, nil
	}

	model, apiKey, err := h.SelectHandoffModel(cfg)
	if err != nil {
		return nil, err
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultHandoffTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := handoffInstructions + "\n\n<transcript>\n" + text + "\n</transcript>"
	start := time.Now()
	blocks, err := h.Client.Complete(callCtx, model, []CompletionMessage{{Role: RoleUser, Content: prompt}}, CompletionOptions{
		APIKey:      apiKey,
		MaxTokens:   handoffMaxTokens,
		Temperature: handoffTemperature,
	})
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("handoff summary call: %w", err)
	}
	summary := joinTextBlocks(blocks)
	if summary == "" {
		return nil, errors.New("handoff summary call: model returned no usable text")
	}

	// Archive first, summary second. Only the summary write is fatal: a
	// handoff without a persisted summary has no value, while the transcript
	// copy is a convenience backup.
	archivedPath := h.archiveTranscript(store, sessionID, req.SessionFile)

	summaryPath := filepath.Join(h.handoffDir(), sessionID+".md")
	fileBody := renderSummaryFile(sessionID, req.SessionKey, model.Ref.String(), len(msgs), summary, time.Now())
	if err := os.MkdirAll(h.handoffDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create handoff dir: %w", err)
	}
	if err := os.WriteFile(summaryPath, []byte(fileBody), 0o644); err != nil {
		return nil, fmt.Errorf("write handoff summary: %w", err)
	}

	h.Logger.Info("session handoff complete", Fields{
		"session_id":    sessionID,
		"model":         model.Ref.String(),
		"message_count": len(msgs),
		"latency_ms":    latency,
		"archived":      archivedPath != "",
	})

	return &HandoffResult{
		Summary:                summary,
		ArchivedTranscriptPath: archivedPath,
		SummaryPath:            summaryPath,
		MessageCount:           len(msgs),
		LatencyMs:              latency,
		Model:                  model.Ref.String(),
	}, nil
}

func joinTextBlocks(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if !block.Kind.IsTextKind() {
			continue
		}
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// archiveTranscript copies (never moves) the source transcript into the
// handoff directory. Best effort: any failure is logged and reported as "".
func (h *HandoffService) archiveTranscript(store *TranscriptStore, sessionID, sessionFile string) string {
	var src string
	for _, cand := range store.TranscriptCandidates(sessionID, sessionFile) {
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			src = cand
			break
		}
	}
	if src == "" {
		h.Logger.Warn("transcript not found for archive", Fields{"session_id": sessionID})
		return ""
	}

	dst := filepath.Join(h.handoffDir(), sessionID+".transcript.jsonl")
	if err := copyFile(src, dst); err != nil {
		h.Logger.Warn("transcript archive failed", Fields{"session_id": sessionID, "error": err.Error()})
		return ""
	}
	return dst
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func renderSummaryFile(sessionID, sessionKey, model string, messageCount int, summary string, now time.Time) string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("session_id: " + sessionID + "\n")
	if strings.TrimSpace(sessionKey) != "" {
		b.WriteString("session_key: " + sessionKey + "\n")
	}
	b.WriteString("created_at: " + now.UTC().Format(time.RFC3339) + "\n")
	fmt.Fprintf(&b, "message_count: %d\n", messageCount)
	b.WriteString("model: " + model + "\n")
	b.WriteString("---\n\n")
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}

// HandoffSummaryBody strips the metadata header from a summary file's
// contents, returning just the model-generated text.
func HandoffSummaryBody(content string) string {
	const fence = "---\n"
	if strings.HasPrefix(content, fence) {
		rest := content[len(fence):]
		if i := strings.Index(rest, "\n"+fence); i >= 0 {
			return strings.TrimSpace(rest[i+1+len(fence):])
		}
	}
	return strings.TrimSpace(content)
}

// ListHandoffSummaries enumerates summary files, newest first. Unreadable
// entries are skipped.
func (h *HandoffService) ListHandoffSummaries() ([]HandoffSummaryInfo, error) {
	ents, err := os.ReadDir(h.handoffDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []HandoffSummaryInfo{}, nil
		}
		return nil, err
	}

	out := make([]HandoffSummaryInfo, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		sessionID := strings.TrimSuffix(e.Name(), ".md")
		if sessionID == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, HandoffSummaryInfo{
			SessionID: sessionID,
			Path:      filepath.Join(h.handoffDir(), e.Name()),
			CreatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID > out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ReadHandoffSummary returns the raw summary file for a session, or false if
// it is absent or unreadable.
func (h *HandoffService) ReadHandoffSummary(sessionID string) (string, bool) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", false
	}
	b, err := os.ReadFile(filepath.Join(h.handoffDir(), sessionID+".md"))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// ReadLatestHandoffSummary returns the newest summary's contents and session
// id, or false when no summaries exist.
func (h *HandoffService) ReadLatestHandoffSummary() (string, string, bool) {
	infos, err := h.ListHandoffSummaries()
	if err != nil || len(infos) == 0 {
		return "", "", false
	}
	for _, info := range infos {
		if content, ok := h.ReadHandoffSummary(info.SessionID); ok {
			return content, info.SessionID, true
		}
	}
	return "", "", false
}
