// Package inboxtui is the terminal UI over an inbox session.
package inboxtui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

const (
	defaultPreviewWidth = 32
	statusTTL           = 5 * time.Second
)

// Config controls TUI behavior.
type Config struct {
	ShowTimestamps bool
	PreviewWidth   int
	Theme          Theme
}

type focus int

const (
	focusList focus = iota
	focusCompose
)

// Messages.
type (
	sessionEventMsg struct{ event *models.Event }
	eventsClosedMsg struct{}
	selectResultMsg struct {
		conversationID string
		err            error
	}
	sendResultMsg struct {
		attempted bool
		err       error
	}
	refreshResultMsg struct{ err error }
	clearStatusMsg   struct{ at time.Time }
)

// Model is the inbox TUI model.
type Model struct {
	ctx     context.Context
	session *inbox.Session
	poller  *inbox.Poller
	events  <-chan *models.Event
	cfg     Config
	styles  styles

	input textinput.Model
	state inbox.State

	cursor int
	focus  focus
	width  int
	height int

	status   string
	statusAt time.Time
	now      func() time.Time
}

// NewModel creates the model. events is the channel returned by Subscribe.
func NewModel(ctx context.Context, session *inbox.Session, poller *inbox.Poller, events <-chan *models.Event, cfg Config) *Model {
	if cfg.PreviewWidth <= 0 {
		cfg.PreviewWidth = defaultPreviewWidth
	}
	if cfg.Theme == (Theme{}) {
		cfg.Theme = DefaultTheme
	}

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = "> "
	input.CharLimit = 2000

	m := &Model{
		ctx:     ctx,
		session: session,
		poller:  poller,
		events:  events,
		cfg:     cfg,
		styles:  newStyles(cfg.Theme),
		input:   input,
		now:     time.Now,
	}
	m.state = session.Snapshot()
	m.input.SetValue(m.state.Draft)
	return m
}

// Run starts the TUI and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, session *inbox.Session, poller *inbox.Poller, events <-chan *models.Event, cfg Config) error {
	model := NewModel(ctx, session, poller, events, cfg)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.input.Width = m.threadWidth() - 4
		return m, nil

	case sessionEventMsg:
		m.refreshState()
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, nil

	case selectResultMsg:
		m.refreshState()
		if typed.err != nil {
			return m, m.setStatus("select failed: " + typed.err.Error())
		}
		return m, nil

	case sendResultMsg:
		m.refreshState()
		return m, nil

	case refreshResultMsg:
		m.refreshState()
		if typed.err != nil {
			return m, m.setStatus("refresh finished with errors")
		}
		return m, m.setStatus("refreshed")

	case clearStatusMsg:
		if typed.at.Equal(m.statusAt) {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}

	if m.focus == focusCompose {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit
	case "ctrl+r":
		return m.refreshCmd()
	}

	if m.focus == focusCompose {
		return m.handleComposeKey(msg)
	}

	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.state.Conversations) - 1
		m.clampCursor()
	case "enter":
		if conv, ok := m.cursorConversation(); ok {
			m.focus = focusCompose
			m.input.Focus()
			return m.selectCmd(conv.ID)
		}
	case "tab", "i":
		if m.state.Selected != "" {
			m.focus = focusCompose
			m.input.Focus()
		}
	case "esc":
		if m.state.Selected != "" {
			return m.selectCmd("")
		}
	case "r":
		return m.refreshCmd()
	}
	return nil
}

func (m *Model) handleComposeKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyTab:
		m.focus = focusList
		m.input.Blur()
		return nil
	case tea.KeyEnter:
		return m.sendCmd()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.session.SetDraft(m.input.Value())
	return cmd
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.state.Conversations) {
		m.cursor = len(m.state.Conversations) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) cursorConversation() (models.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.state.Conversations) {
		return models.Conversation{}, false
	}
	return m.state.Conversations[m.cursor], true
}

// refreshState takes a new snapshot, keeping the cursor on the same
// conversation when it moved in the list.
func (m *Model) refreshState() {
	var cursorID string
	if conv, ok := m.cursorConversation(); ok {
		cursorID = conv.ID
	}

	m.state = m.session.Snapshot()

	if cursorID != "" {
		for i, conv := range m.state.Conversations {
			if conv.ID == cursorID {
				m.cursor = i
				break
			}
		}
	}
	m.clampCursor()
}

func (m *Model) setStatus(text string) tea.Cmd {
	m.status = text
	m.statusAt = m.now()
	at := m.statusAt
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{at: at}
	})
}

func (m *Model) selectCmd(conversationID string) tea.Cmd {
	poller := m.poller
	session := m.session
	ctx := m.ctx
	return func() tea.Msg {
		var err error
		if poller != nil && poller.IsRunning() {
			err = poller.Select(conversationID)
		} else {
			session.Select(ctx, conversationID)
			if conversationID != "" {
				_, err = session.FetchMessages(ctx, conversationID)
			}
		}
		return selectResultMsg{conversationID: conversationID, err: err}
	}
}

// sendCmd clears the input at once and sends in the background. Blank input
// or an unresolved recipient does nothing.
func (m *Model) sendCmd() tea.Cmd {
	text := m.input.Value()
	conv, ok := m.state.SelectedConversation()
	if strings.TrimSpace(text) == "" || !ok || !conv.CanSend() || m.state.Sending {
		return nil
	}

	m.session.SetDraft(text)
	m.input.Reset()

	session := m.session
	ctx := m.ctx
	recipient := conv.RecipientID
	return func() tea.Msg {
		attempted, err := session.Send(ctx, recipient)
		return sendResultMsg{attempted: attempted, err: err}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	session := m.session
	ctx := m.ctx
	return func() tea.Msg {
		return refreshResultMsg{err: session.Refresh(ctx)}
	}
}

func waitForEvent(ch <-chan *models.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return sessionEventMsg{event: event}
	}
}
