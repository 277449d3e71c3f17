package cli

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

const (
	tablePadding      = 2
	previewCellWidth  = 48
	messageCellWidth  = 72
	tableTimeLayout   = "2006-01-02 15:04"
	pendingMessageTag = "(sending)"
)

func writeConversationTable(out io.Writer, session *inbox.Session, conversations []models.Conversation) error {
	rows := make([][]string, 0, len(conversations))
	for _, conv := range conversations {
		rows = append(rows, []string{
			conv.ID,
			conv.Name,
			truncateCell(conv.LastMessage, previewCellWidth),
			formatTime(conv.Timestamp),
			formatYesNo(session.HasUnseen(conv)),
			formatYesNo(conv.CanSend()),
		})
	}
	return writeTable(out, []string{"ID", "NAME", "LAST MESSAGE", "UPDATED", "UNSEEN", "CAN REPLY"}, rows)
}

func writeMessageTable(out io.Writer, conv models.Conversation, messages []models.Message) error {
	rows := make([][]string, 0, len(messages))
	for _, msg := range messages {
		author := conv.Name
		if msg.IsFromPage {
			author = "You"
		}
		text := truncateCell(msg.Content, messageCellWidth)
		if msg.Pending() {
			text += " " + pendingMessageTag
		}
		rows = append(rows, []string{formatTime(msg.Timestamp), author, text})
	}
	return writeTable(out, []string{"TIME", "FROM", "MESSAGE"}, rows)
}

func truncateCell(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	return runewidth.Truncate(value, width, "…")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(tableTimeLayout)
}

// writeTable prints rows under headers in space-aligned columns. Widths are
// measured on screen cells so styled or wide text still lines up.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	lines := rows
	if len(headers) > 0 {
		lines = append([][]string{headers}, rows...)
	}

	var widths []int
	for _, line := range lines {
		for i, cell := range line {
			if i == len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	if len(widths) == 0 {
		return nil
	}

	var b strings.Builder
	for _, line := range lines {
		for i := range widths {
			var cell string
			if i < len(line) {
				cell = line[i]
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+tablePadding))
			}
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func formatYesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
