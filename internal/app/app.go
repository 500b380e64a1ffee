package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	chatMaxHistoryMessages = 30
	chatTemperature        = 0.7
)

// Application wires the config, gateway client, transcript store, session
// index, and handoff service together for the TUI and CLI layers.
type Application struct {
	Config   Config
	Logger   *Logger
	Client   CompletionClient
	Store    *TranscriptStore
	Index    *SessionIndex
	Handoff  *HandoffService
	Root     string
	MockMode bool
}

func NewApplication(cfg Config, mockMode bool) (*Application, error) {
	logger := NewLogger(DefaultLogWriter())
	root := DefaultAgentRoot(cfg.AgentID)

	var client CompletionClient
	if mockMode {
		client = NewMockCompletionClient()
	} else {
		client = NewGatewayClient(cfg.GatewayURL)
	}

	index, err := NewSessionIndex(root)
	if err != nil {
		return nil, err
	}

	return &Application{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		Store:    NewTranscriptStore(root),
		Index:    index,
		Handoff:  NewHandoffService(cfg, root, client, logger),
		Root:     root,
		MockMode: mockMode,
	}, nil
}

// HasDefaultCredential reports whether the configured default model can be
// used for real requests. Callers fall back to mock mode when it cannot.
func HasDefaultCredential(cfg Config) bool {
	info, ok := ResolveModel(ParseModelRef(cfg.Model))
	if !ok {
		return false
	}
	return LookupCredential(cfg, info) != ""
}

// CurrentOrNewSession loads the active session and its transcript, creating a
// fresh session when none is recorded.
func (a *Application) CurrentOrNewSession() (*SessionMeta, []TranscriptMessage, error) {
	agentID := a.Config.AgentID
	if id, err := a.Index.CurrentSession(agentID); err == nil && id != "" {
		msgs, err := a.Store.ReadSessionMessages(id, "")
		if err == nil {
			return &SessionMeta{ID: id, AgentID: agentID}, msgs, nil
		}
	}
	sess, err := a.Index.CreateSession(agentID, "")
	if err != nil {
		return nil, nil, err
	}
	return sess, []TranscriptMessage{}, nil
}

func (a *Application) chatModel() (ModelInfo, string, error) {
	info, ok := ResolveModel(ParseModelRef(a.Config.Model))
	if !ok {
		return ModelInfo{}, "", fmt.Errorf("unknown model %q", a.Config.Model)
	}
	if a.MockMode {
		return info, "mock", nil
	}
	key := LookupCredential(a.Config, info)
	if key == "" {
		return ModelInfo{}, "", fmt.Errorf("no API key configured for provider %q", info.Ref.Provider)
	}
	return info, key, nil
}

// SendChat appends the user's message to the transcript, asks the gateway for
// a reply with a bounded history window, appends the reply, and returns it.
func (a *Application) SendChat(ctx context.Context, sessionID, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty input")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("missing sessionID")
	}

	model, apiKey, err := a.chatModel()
	if err != nil {
		return "", err
	}

	if err := a.Store.AppendMessage(TranscriptMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleUser,
		Text:      input,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	history, err := a.Store.ReadSessionMessages(sessionID, "")
	if err != nil {
		return "", err
	}

	start := time.Now()
	blocks, err := a.Client.Complete(ctx, model, buildChatMessages(history), CompletionOptions{
		APIKey:      apiKey,
		MaxTokens:   a.Config.MaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		a.Logger.Error("chat completion failed", Fields{"session_id": sessionID, "error": err.Error()})
		return "", err
	}
	reply := joinTextBlocks(blocks)
	if reply == "" {
		return "", errors.New("model returned no usable text")
	}

	if err := a.Store.AppendMessage(TranscriptMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleAssistant,
		Text:      reply,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("append assistant message: %w", err)
	}
	_ = a.Index.TouchSession(sessionID)

	a.Logger.Info("chat turn complete", Fields{
		"session_id": sessionID,
		"model":      model.Ref.String(),
		"latency_ms": time.Since(start).Milliseconds(),
	})
	return reply, nil
}

// buildChatMessages maps the transcript tail onto completion messages.
// Tool messages and empty extractions are dropped.
func buildChatMessages(history []TranscriptMessage) []CompletionMessage {
	if len(history) > chatMaxHistoryMessages {
		history = history[len(history)-chatMaxHistoryMessages:]
	}
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			continue
		}
		text := strings.TrimSpace(messageText(msg))
		if text == "" {
			continue
		}
		out = append(out, CompletionMessage{Role: msg.Role, Content: text})
	}
	return out
}

// ResetSession performs a handoff of the current session, then starts a new
// one. The new session is created even when the handoff fails; the handoff
// error is returned alongside it so the caller can tell the user the summary
// was skipped.
func (a *Application) ResetSession(ctx context.Context) (*HandoffResult, *SessionMeta, error) {
	agentID := a.Config.AgentID

	var result *HandoffResult
	var handoffErr error
	if current, err := a.Index.CurrentSession(agentID); err == nil && current != "" {
		result, handoffErr = a.Handoff.PerformSessionHandoff(ctx, HandoffRequest{
			SessionKey: agentID + ":" + current,
			SessionID:  current,
		})
	}

	sess, err := a.Index.CreateSession(agentID, "")
	if err != nil {
		return result, nil, err
	}
	return result, sess, handoffErr
}

// ResumeLatestHandoff injects the newest handoff summary into a session as a
// system message so the next completion carries the prior session's context.
// Returns the source session id, or false when no summary exists.
func (a *Application) ResumeLatestHandoff(sessionID string) (string, bool, error) {
	content, fromSession, ok := a.Handoff.ReadLatestHandoffSummary()
	if !ok {
		return "", false, nil
	}
	body := HandoffSummaryBody(content)
	if body == "" {
		return "", false, nil
	}
	err := a.Store.AppendMessage(TranscriptMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleSystem,
		Text:      "Context carried over from a previous session:\n\n" + body,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return "", false, err
	}
	return fromSession, true, nil
}
