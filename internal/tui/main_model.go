package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/app"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Message struct {
	ID        string
	Role      string // user|assistant|system|error
	Content   string
	Timestamp time.Time
}

type replyMsg struct {
	content string
	err     error
}

type resetDoneMsg struct {
	result *app.HandoffResult
	sess   *app.SessionMeta
	err    error
}

type spinMsg struct{}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type MainModel struct {
	app   *app.Application
	theme Theme

	width  int
	height int
	ready  bool

	sessionID string
	messages  []Message
	input     textarea.Model
	chatVP    viewport.Model

	running    bool
	statusText string
	spinnerPos int
	cancel     context.CancelFunc

	history []string
	histPos int
	draft   string
}

func New(application *app.Application) *MainModel {
	ta := textarea.New()
	ta.Placeholder = "Message the agent. Enter sends, /help lists commands."
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetHeight(1)
	ta.Prompt = " "
	ta.ShowLineNumbers = false

	// Keep textarea styling minimal; the input container carries the border.
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle()

	m := &MainModel{
		app:        application,
		theme:      ThemeFor(application.Config.Theme),
		width:      100,
		height:     30,
		input:      ta,
		statusText: "Ready",
	}

	if sess, msgs, err := application.CurrentOrNewSession(); err == nil {
		m.sessionID = sess.ID
		for _, t := range msgs {
			m.messages = append(m.messages, transcriptToMessage(t))
		}
	}
	if hist, err := application.Index.LoadPromptHistory(application.Config.AgentID); err == nil {
		m.history = hist
	}
	m.histPos = len(m.history)

	if application.MockMode {
		m.appendSystem("running in mock mode; set a provider API key for real replies.")
	}
	return m
}

func transcriptToMessage(t app.TranscriptMessage) Message {
	role := string(t.Role)
	switch t.Role {
	case app.RoleUser, app.RoleAssistant, app.RoleSystem:
	default:
		role = "system"
	}
	return Message{
		ID:        t.ID,
		Role:      role,
		Content:   strings.TrimSpace(app.TranscriptMessageText(t)),
		Timestamp: t.CreatedAt,
	}
}

func (m *MainModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m *MainModel) appendSystem(content string) {
	m.messages = append(m.messages, Message{
		ID:        fmt.Sprintf("system-%d", time.Now().UnixNano()),
		Role:      "system",
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (m *MainModel) appendError(err error) {
	m.messages = append(m.messages, Message{
		ID:        fmt.Sprintf("error-%d", time.Now().UnixNano()),
		Role:      "error",
		Content:   fmt.Sprintf("error: %v", err),
		Timestamp: time.Now(),
	})
}

func (m *MainModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chatH := m.chatHeight()
		if !m.ready {
			m.chatVP = viewport.New(m.width-2, chatH)
			m.chatVP.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.chatVP.Width = m.width - 2
			m.chatVP.Height = chatH
		}
		m.input.SetWidth(maxInt(10, m.width-6))
		m.refreshChat()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.running && m.cancel != nil {
				m.statusText = "Cancelling…"
				m.cancel()
				return m, nil
			}
			return m, m.quit()

		case tea.KeyEnter:
			return m, m.onEnter()

		case tea.KeyUp:
			m.recallHistory(-1)
			return m, nil
		case tea.KeyDown:
			m.recallHistory(1)
			return m, nil
		case tea.KeyPgUp:
			m.chatVP.ViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.chatVP.ViewDown()
			return m, nil
		}

	case replyMsg:
		m.running = false
		m.statusText = "Ready"
		m.cancel = nil
		if msg.err != nil {
			m.appendError(msg.err)
		} else {
			m.messages = append(m.messages, Message{
				ID:        fmt.Sprintf("ai-%d", time.Now().UnixNano()),
				Role:      "assistant",
				Content:   msg.content,
				Timestamp: time.Now(),
			})
		}
		m.refreshChat()
		m.chatVP.GotoBottom()
		return m, nil

	case resetDoneMsg:
		m.running = false
		m.statusText = "Ready"
		m.cancel = nil
		m.messages = nil
		if msg.sess != nil {
			m.sessionID = msg.sess.ID
		}
		if msg.err != nil {
			m.appendSystem("handoff summary skipped: " + msg.err.Error())
		} else if msg.result != nil && msg.result.SummaryPath != "" {
			m.appendSystem(fmt.Sprintf("session handed off (%d messages summarized). /resume injects it here.", msg.result.MessageCount))
		}
		m.appendSystem("new session started.")
		m.refreshChat()
		m.chatVP.GotoBottom()
		return m, nil

	case spinMsg:
		m.spinnerPos = (m.spinnerPos + 1) % len(spinnerFrames)
		if m.running {
			return m, m.spinTick()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.chatVP, cmd = m.chatVP.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *MainModel) quit() tea.Cmd {
	_ = m.app.Index.SavePromptHistory(m.app.Config.AgentID, m.history)
	return tea.Quit
}

func (m *MainModel) recallHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	if m.histPos == len(m.history) && delta < 0 {
		m.draft = m.input.Value()
	}
	pos := m.histPos + delta
	if pos < 0 {
		pos = 0
	}
	if pos > len(m.history) {
		pos = len(m.history)
	}
	m.histPos = pos
	if pos == len(m.history) {
		m.input.SetValue(m.draft)
	} else {
		m.input.SetValue(m.history[pos])
	}
	m.input.CursorEnd()
}

func (m *MainModel) onEnter() tea.Cmd {
	val := strings.TrimSpace(m.input.Value())
	if val == "" {
		return nil
	}
	m.input.Reset()
	m.histPos = len(m.history)
	m.draft = ""

	if strings.HasPrefix(val, "/") {
		return m.handleSlashCommand(val)
	}

	m.history = append(m.history, val)
	m.messages = append(m.messages, Message{
		ID:        fmt.Sprintf("user-%d", time.Now().UnixNano()),
		Role:      "user",
		Content:   val,
		Timestamp: time.Now(),
	})
	m.refreshChat()
	m.chatVP.GotoBottom()

	if m.running {
		m.appendSystem("already waiting for a reply (Ctrl+C to cancel).")
		m.refreshChat()
		return nil
	}

	m.running = true
	m.statusText = "Waiting for reply…"
	m.spinnerPos = 0

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	sessionID := m.sessionID
	application := m.app
	send := func() tea.Msg {
		reply, err := application.SendChat(ctx, sessionID, val)
		return replyMsg{content: reply, err: err}
	}
	return tea.Batch(send, m.spinTick())
}

func (m *MainModel) spinTick() tea.Cmd {
	return tea.Tick(90*time.Millisecond, func(_ time.Time) tea.Msg { return spinMsg{} })
}

func (m *MainModel) chatHeight() int {
	// Top bar, input box (3 with border), footer.
	h := m.height - 1 - 3 - 1 - 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *MainModel) refreshChat() {
	if !m.ready {
		return
	}
	width := m.chatVP.Width - 2
	if width < 20 {
		width = 20
	}
	if m.shouldRenderLaunchArt() {
		m.chatVP.SetContent(m.renderLaunchArt(width))
		return
	}
	var b strings.Builder
	for _, msg := range m.messages {
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n\n")
	}
	m.chatVP.SetContent(strings.TrimRight(b.String(), "\n"))
}

func (m *MainModel) renderMessage(msg Message, width int) string {
	var roleStyle lipgloss.Style
	roleLabel := "SYS"
	switch msg.Role {
	case "user":
		roleStyle = m.theme.RoleYou
		roleLabel = "YOU"
	case "assistant":
		roleStyle = m.theme.RoleAI
		roleLabel = "BOT"
	case "error":
		roleStyle = m.theme.RoleErr
		roleLabel = "ERR"
	default:
		roleStyle = m.theme.RoleSys
	}

	header := roleStyle.Render(roleLabel) + " " + m.theme.TopBarMeta.Render(msg.Timestamp.Format("15:04"))
	body := lipgloss.NewStyle().Foreground(m.theme.TextPrimary).Width(width).Render(msg.Content)
	return header + "\n" + body
}

func (m *MainModel) View() string {
	if !m.ready {
		return "…"
	}
	top := m.renderTopBar()
	chat := m.theme.Pane.Width(m.width - 2).Render(m.chatVP.View())
	input := m.renderInputArea()
	footer := m.renderFooter()
	return lipgloss.JoinVertical(lipgloss.Left, top, chat, input, footer)
}

func (m *MainModel) renderTopBar() string {
	title := m.theme.TopBarTitle.Render("chatrelay")
	badge := m.theme.TopBarBadge.Render(m.app.Config.Model)
	session := m.theme.TopBarMeta.Render("session " + shortID(m.sessionID))
	return m.theme.TopBar.Render(title + "  " + badge + "  " + session)
}

func (m *MainModel) renderInputArea() string {
	style := m.theme.InputBox
	if !m.running {
		style = m.theme.InputBoxF
	}
	return style.Width(m.width - 2).Render(m.input.View())
}

func (m *MainModel) renderFooter() string {
	status := m.statusText
	if m.running {
		status = m.theme.Spinner.Render(spinnerFrames[m.spinnerPos]) + " " + status
	}
	return m.theme.Footer.Render(status + "  ·  Enter send · /help commands · Ctrl+C quit")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
