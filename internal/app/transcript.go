package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func normalizeRole(raw string) Role {
	switch r := strings.ToLower(strings.TrimSpace(raw)); r {
	case "user":
		return RoleUser
	case "assistant":
		return RoleAssistant
	case "system":
		return RoleSystem
	case "tool", "tool-result", "tool_result", "toolresult":
		return RoleTool
	default:
		return Role(r)
	}
}

type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockOutputText BlockKind = "output_text"
	BlockInputText  BlockKind = "input_text"
	BlockToolCall   BlockKind = "tool_call"
	BlockToolResult BlockKind = "tool_result"
)

func (k BlockKind) IsTextKind() bool {
	switch k {
	case BlockText, BlockOutputText, BlockInputText:
		return true
	}
	return false
}

// ContentBlock is one element of a structured message body. Text kinds carry
// Text; tool calls carry the name and raw arguments.
type ContentBlock struct {
	Kind     BlockKind       `json:"type"`
	Text     string          `json:"text,omitempty"`
	ToolName string          `json:"name,omitempty"`
	ToolArgs json.RawMessage `json:"input,omitempty"`
}

// TranscriptMessage is one turn of a session. Exactly one of Text and Blocks
// is normally set; plain string content stays in Text.
type TranscriptMessage struct {
	ID        string
	SessionID string
	Role      Role
	Text      string
	Blocks    []ContentBlock
	CreatedAt time.Time
}

// transcriptLine is the JSONL wire form. Content is either a JSON string or
// an array of content blocks; anything else degrades to an empty message.
type transcriptLine struct {
	ID        string          `json:"id,omitempty"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
}

// TranscriptStore reads and appends session transcripts stored as JSONL files
// under <root>/sessions/.
type TranscriptStore struct {
	Root string
}

func NewTranscriptStore(root string) *TranscriptStore {
	if strings.TrimSpace(root) == "" {
		root = DefaultAgentRoot("")
	}
	return &TranscriptStore{Root: root}
}

func (s *TranscriptStore) sessionsDir() string {
	return filepath.Join(s.Root, "sessions")
}

// TranscriptCandidates lists the paths probed for a session's transcript, in
// priority order. An explicit sessionFile always wins.
func (s *TranscriptStore) TranscriptCandidates(sessionID, sessionFile string) []string {
	cands := make([]string, 0, 4)
	if f := strings.TrimSpace(sessionFile); f != "" {
		cands = append(cands, f)
	}
	cands = append(cands,
		filepath.Join(s.sessionsDir(), sessionID+".jsonl"),
		filepath.Join(s.sessionsDir(), sessionID, "transcript.jsonl"),
		filepath.Join(s.Root, sessionID+".jsonl"),
	)
	return cands
}

// ReadSessionMessages loads a session transcript. A missing transcript is an
// empty session, not an error. Lines that are not valid JSON objects are
// skipped; object-shaped content degrades to an empty message.
func (s *TranscriptStore) ReadSessionMessages(sessionID, sessionFile string) ([]TranscriptMessage, error) {
	var path string
	for _, cand := range s.TranscriptCandidates(sessionID, sessionFile) {
		if st, err := os.Stat(cand); err == nil && !st.IsDir() {
			path = cand
			break
		}
	}
	if path == "" {
		return []TranscriptMessage{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	msgs := make([]TranscriptMessage, 0, 64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			continue
		}
		msg := TranscriptMessage{
			ID:        line.ID,
			SessionID: sessionID,
			Role:      normalizeRole(line.Role),
			CreatedAt: line.CreatedAt,
		}
		decodeContent(line.Content, &msg)
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return msgs, fmt.Errorf("scan transcript: %w", err)
	}
	return msgs, nil
}

func decodeContent(raw json.RawMessage, msg *TranscriptMessage) {
	if len(raw) == 0 {
		return
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		msg.Text = text
		return
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		msg.Blocks = blocks
		return
	}
	// Unrecognized shape: keep the turn, drop the body.
}

// AppendMessage writes one message to the session's JSONL transcript,
// creating the sessions directory on first use.
func (s *TranscriptStore) AppendMessage(msg TranscriptMessage) error {
	if strings.TrimSpace(msg.SessionID) == "" {
		return fmt.Errorf("missing sessionID")
	}
	if err := os.MkdirAll(s.sessionsDir(), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	line := transcriptLine{
		ID:        msg.ID,
		Role:      string(msg.Role),
		CreatedAt: msg.CreatedAt,
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now()
	}
	var content any = msg.Text
	if len(msg.Blocks) > 0 {
		content = msg.Blocks
	}
	rawContent, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	line.Content = rawContent

	payload, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode transcript line: %w", err)
	}

	path := filepath.Join(s.sessionsDir(), msg.SessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// DefaultAgentRoot resolves the per-agent data directory, preferring
// XDG_DATA_HOME, then ~/.local/share, then the system temp dir.
func DefaultAgentRoot(agentID string) string {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = "default"
	}
	base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".local", "share")
		} else {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, "chatrelay", "agents", agentID)
}
