package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `commands:
  /help              show this help
  /new               hand off the current session and start a new one
  /resume            inject the latest handoff summary into this session
  /handoffs          list saved handoff summaries
  /sessions          list recent sessions
  /theme <name>      switch theme (porcelain, midnight, no-color)
  /quit              exit`

func (m *MainModel) handleSlashCommand(val string) tea.Cmd {
	parts := strings.Fields(val)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help":
		m.appendSystem(helpText)

	case "/quit", "/exit":
		return m.quit()

	case "/theme":
		if len(args) == 0 {
			m.appendSystem("current theme: " + string(m.theme.Name))
			break
		}
		m.theme = ThemeFor(args[0])
		m.appendSystem("theme set to " + string(m.theme.Name))

	case "/new":
		if m.running {
			m.appendSystem("still waiting for a reply; try again in a moment.")
			break
		}
		m.running = true
		m.statusText = "Summarizing session for handoff…"
		m.spinnerPos = 0
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		application := m.app
		reset := func() tea.Msg {
			result, sess, err := application.ResetSession(ctx)
			return resetDoneMsg{result: result, sess: sess, err: err}
		}
		m.refreshChat()
		return tea.Batch(reset, m.spinTick())

	case "/resume":
		from, ok, err := m.app.ResumeLatestHandoff(m.sessionID)
		if err != nil {
			m.appendError(err)
			break
		}
		if !ok {
			m.appendSystem("no handoff summary found.")
			break
		}
		m.appendSystem("resumed context from session " + shortID(from) + ".")

	case "/handoffs":
		infos, err := m.app.Handoff.ListHandoffSummaries()
		if err != nil {
			m.appendError(err)
			break
		}
		if len(infos) == 0 {
			m.appendSystem("no handoff summaries yet. /new creates one.")
			break
		}
		var b strings.Builder
		b.WriteString("handoff summaries (newest first):\n")
		for _, info := range infos {
			fmt.Fprintf(&b, "  %s  %s  %d bytes\n",
				shortID(info.SessionID),
				info.CreatedAt.Format(time.DateTime),
				info.SizeBytes)
		}
		m.appendSystem(strings.TrimRight(b.String(), "\n"))

	case "/sessions":
		sessions, err := m.app.Index.ListSessions(m.app.Config.AgentID, 10)
		if err != nil {
			m.appendError(err)
			break
		}
		if len(sessions) == 0 {
			m.appendSystem("no sessions recorded yet.")
			break
		}
		var b strings.Builder
		b.WriteString("recent sessions:\n")
		for _, sess := range sessions {
			marker := " "
			if sess.ID == m.sessionID {
				marker = "*"
			}
			fmt.Fprintf(&b, " %s %s  %s\n", marker, shortID(sess.ID), sess.UpdatedAt.Format(time.DateTime))
		}
		m.appendSystem(strings.TrimRight(b.String(), "\n"))

	default:
		m.appendSystem("unknown command " + cmd + " (try /help)")
	}

	m.refreshChat()
	m.chatVP.GotoBottom()
	return nil
}
