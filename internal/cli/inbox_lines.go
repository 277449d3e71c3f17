package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

// lineReporter prints inbox activity for non-terminal output. Each message
// of the open thread is printed once.
type lineReporter struct {
	session *inbox.Session
	out     io.Writer
	json    bool

	thread string
	seen   map[string]bool
}

func newLineReporter(session *inbox.Session, out io.Writer, jsonLines bool) *lineReporter {
	return &lineReporter{
		session: session,
		out:     out,
		json:    jsonLines,
		seen:    make(map[string]bool),
	}
}

// Report writes the lines for one event.
func (r *lineReporter) Report(event *models.Event) error {
	if event == nil {
		return nil
	}
	if r.json {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}

	stamp := event.Timestamp.Local().Format("15:04:05")
	switch event.Type {
	case models.EventTypeConversationsRefreshed:
		state := r.session.Snapshot()
		unseen := 0
		for _, conv := range state.Conversations {
			if r.session.HasUnseen(conv) {
				unseen++
			}
		}
		_, err := fmt.Fprintf(r.out, "%s conversations: %d (%d unseen)\n", stamp, len(state.Conversations), unseen)
		return err

	case models.EventTypeSelectionChanged:
		state := r.session.Snapshot()
		name := event.ConversationID
		if conv, ok := state.SelectedConversation(); ok {
			name = conv.Name
		}
		_, err := fmt.Fprintf(r.out, "%s opened %s\n", stamp, name)
		return err

	case models.EventTypeMessagesRefreshed:
		return r.reportMessages()

	case models.EventTypeMessageFailed:
		var payload models.SendPayload
		_ = json.Unmarshal(event.Payload, &payload)
		_, err := fmt.Fprintf(r.out, "%s send failed: %s\n", stamp, payload.Error)
		return err

	case models.EventTypeSyncError:
		var payload models.ErrorPayload
		_ = json.Unmarshal(event.Payload, &payload)
		_, err := fmt.Fprintf(r.out, "%s sync error (%s): %s\n", stamp, payload.Context, payload.Error)
		return err
	}
	return nil
}

func (r *lineReporter) reportMessages() error {
	state := r.session.Snapshot()
	if state.Selected != r.thread {
		r.thread = state.Selected
		r.seen = make(map[string]bool)
	}

	name := models.UnknownCounterpart
	if conv, ok := state.SelectedConversation(); ok {
		name = conv.Name
	}
	for _, msg := range state.Messages {
		if msg.Pending() || r.seen[msg.ID] {
			continue
		}
		r.seen[msg.ID] = true
		author := name
		if msg.IsFromPage {
			author = "You"
		}
		if _, err := fmt.Fprintf(r.out, "%s %s: %s\n", formatTime(msg.Timestamp), author, msg.Content); err != nil {
			return err
		}
	}
	return nil
}
