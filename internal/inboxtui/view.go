package inboxtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tOgg1/pagechat/internal/models"
)

const (
	unseenMarker = "●"
	minThread    = 20
)

func (m *Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 2
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	listPane := m.styles.pane
	threadPane := m.styles.pane
	if m.focus == focusList {
		listPane = m.styles.activePane
	} else {
		threadPane = m.styles.activePane
	}

	list := listPane.
		Width(m.listWidth()).
		Height(bodyHeight).
		Render(m.renderConversations(bodyHeight))
	thread := threadPane.
		Width(m.threadWidth()).
		Height(bodyHeight).
		Render(m.renderThread(bodyHeight))

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, thread)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) listWidth() int {
	return m.cfg.PreviewWidth + 4
}

func (m *Model) threadWidth() int {
	w := m.width - m.listWidth() - 6
	if w < minThread {
		w = minThread
	}
	return w
}

func (m *Model) renderHeader() string {
	parts := []string{m.styles.header.Render("pagechat")}
	if page := m.session.PageID(); page != "" {
		parts = append(parts, m.styles.muted.Render("page "+page))
	}
	if !m.state.LastRefreshed.IsZero() {
		parts = append(parts, m.styles.muted.Render("refreshed "+m.state.LastRefreshed.Local().Format("15:04:05")))
	}
	if m.state.Refreshing {
		parts = append(parts, m.styles.accent.Render("refreshing..."))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderFooter() string {
	var hint string
	if m.focus == focusCompose {
		hint = "enter send  esc back  ctrl+r refresh  ctrl+c quit"
	} else {
		hint = "j/k move  enter open  esc close  r refresh  q quit"
	}
	line := m.styles.muted.Render(hint)
	if m.status != "" {
		line = m.styles.accent.Render(m.status) + "  " + line
	}
	return line
}

func (m *Model) renderConversations(height int) string {
	if m.state.ConversationError != "" {
		return m.styles.err.Render(wordwrap.String(m.state.ConversationError, m.cfg.PreviewWidth))
	}
	if len(m.state.Conversations) == 0 {
		return m.styles.muted.Render("No conversations")
	}

	perRow := 2
	visible := height / perRow
	if visible < 1 {
		visible = 1
	}
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	var lines []string
	for i := start; i < len(m.state.Conversations) && i < start+visible; i++ {
		lines = append(lines, m.renderConversationRow(i))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderConversationRow(index int) string {
	conv := m.state.Conversations[index]
	width := m.cfg.PreviewWidth

	marker := " "
	if m.session.HasUnseen(conv) {
		marker = m.styles.accent.Render(unseenMarker)
	}
	name := runewidth.Truncate(conv.Name, width-2, "…")
	if conv.ID == m.state.Selected {
		name = m.styles.accent.Render(name)
	}
	title := marker + " " + name
	preview := "  " + m.styles.muted.Render(Truncate(conv.LastMessage, width-2))

	row := title + "\n" + preview
	if index == m.cursor && m.focus == focusList {
		return m.styles.selected.Render(row)
	}
	return row
}

func (m *Model) renderThread(height int) string {
	width := m.threadWidth() - 2
	if m.state.Selected == "" {
		return m.styles.muted.Render("Select a conversation")
	}

	var blocks []string
	if m.state.MessageError != "" {
		blocks = append(blocks, m.styles.err.Render(wordwrap.String(m.state.MessageError, width)))
	}
	if m.state.Loading && len(m.state.Messages) == 0 {
		blocks = append(blocks, m.styles.muted.Render("Loading..."))
	}

	name := models.UnknownCounterpart
	if conv, ok := m.state.SelectedConversation(); ok {
		name = conv.Name
	}
	for _, msg := range m.state.Messages {
		blocks = append(blocks, m.renderMessage(msg, name, width))
	}

	inputHeight := 2
	content := strings.Join(blocks, "\n")
	lines := strings.Split(content, "\n")
	if avail := height - inputHeight; avail > 0 && len(lines) > avail {
		lines = lines[len(lines)-avail:]
	}

	return strings.Join(lines, "\n") + "\n\n" + m.input.View()
}

func (m *Model) renderMessage(msg models.Message, counterpart string, width int) string {
	author := counterpart
	style := m.styles.other
	if msg.IsFromPage {
		author = "You"
		style = m.styles.own
	}

	header := style.Bold(true).Render(author)
	if m.cfg.ShowTimestamps && !msg.Timestamp.IsZero() {
		header += " " + m.styles.muted.Render(msg.Timestamp.Local().Format("Jan 2 15:04"))
	}
	if msg.Pending() {
		header += " " + m.styles.muted.Render("(sending...)")
	}

	body := style.Render(wordwrap.String(msg.Content, width))
	return fmt.Sprintf("%s\n%s", header, body)
}

// Truncate shortens s to width display cells on a single line.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}
