package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const launchTitle = `
        _             _                  _
   ___ | |__    __ _ | |_  _ __  ___   | |  __ _  _   _
  / __|| '_ \  / _' || __|| '__|/ _ \  | | / _' || | | |
 | (__ | | | || (_| || |_ | |  |  __/  | || (_| || |_| |
  \___||_| |_| \__,_| \__||_|   \___|  |_| \__,_| \__, |
                                                  |___/`

const launchTagline = "chat with your agent gateway · /help for commands"

// shouldRenderLaunchArt gates the splash to genuinely empty sessions: any
// user or assistant message replaces it with the conversation.
func (m *MainModel) shouldRenderLaunchArt() bool {
	if m.running {
		return false
	}
	for _, msg := range m.messages {
		switch msg.Role {
		case "user", "assistant", "error":
			return false
		}
	}
	return true
}

func (m *MainModel) renderLaunchArt(width int) string {
	if width < 60 {
		return ""
	}
	art := strings.Trim(launchTitle, "\n")
	var b strings.Builder
	for _, line := range strings.Split(art, "\n") {
		b.WriteString(m.theme.Banner.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.theme.TopBarMeta.Render(launchTagline))
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(b.String())
}
