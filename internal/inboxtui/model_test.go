package inboxtui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

const testPageID = "page-1"

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubProvider struct {
	mu            sync.Mutex
	conversations []graph.ConversationNode
	messages      map[string][]graph.MessageNode
	sends         []string
}

func (s *stubProvider) PageID() string { return testPageID }

func (s *stubProvider) ListConversations(ctx context.Context) ([]graph.ConversationNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations, nil
}

func (s *stubProvider) ListMessages(ctx context.Context, conversationID string, limit int) ([]graph.MessageNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[conversationID], nil
}

func (s *stubProvider) SendMessage(ctx context.Context, recipientID, text string) (*graph.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, recipientID+":"+text)
	return &graph.SendResult{RecipientID: recipientID, MessageID: "m-sent"}, nil
}

func conversation(id, name, recipient, text string, at time.Time) graph.ConversationNode {
	var node graph.ConversationNode
	node.ID = id
	node.Participants.Data = []graph.Participant{{ID: testPageID}, {ID: recipient, Name: name}}
	node.Messages = &struct {
		Data []graph.MessageNode `json:"data"`
	}{Data: []graph.MessageNode{{
		ID:          id + "-m",
		Message:     text,
		From:        graph.Participant{ID: recipient, Name: name},
		CreatedTime: at.Format(time.RFC3339),
	}}}
	return node
}

func newTestModel(t *testing.T) (*Model, *inbox.Session, *stubProvider) {
	t.Helper()
	provider := &stubProvider{
		conversations: []graph.ConversationNode{
			conversation("c-old", "Alice", "R1", "older message", baseTime),
			conversation("c-new", "Bob", "R2", "newer message", baseTime.Add(time.Minute)),
		},
		messages: map[string][]graph.MessageNode{
			"c-new": {{ID: "m1", Message: "hello from bob", From: graph.Participant{ID: "R2", Name: "Bob"}, CreatedTime: baseTime.Format(time.RFC3339)}},
		},
	}
	session := inbox.NewSession(provider, inbox.Config{SendSettleDelay: 0})
	_, err := session.FetchConversations(context.Background())
	require.NoError(t, err)

	model := NewModel(context.Background(), session, nil, nil, Config{})
	model = applyUpdate(t, model, tea.WindowSizeMsg{Width: 120, Height: 30})
	return model, session, provider
}

func applyUpdate(t *testing.T, model *Model, msg tea.Msg) *Model {
	t.Helper()
	next, _ := model.Update(msg)
	updated, ok := next.(*Model)
	require.True(t, ok)
	return updated
}

// runCmd applies the message produced by cmd, if any.
func runCmd(t *testing.T, model *Model, cmd tea.Cmd) *Model {
	t.Helper()
	if cmd == nil {
		return model
	}
	return applyUpdate(t, model, cmd())
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func typeText(t *testing.T, model *Model, text string) *Model {
	t.Helper()
	for _, r := range text {
		model = applyUpdate(t, model, runeKey(r))
	}
	return model
}

func TestViewListsNewestFirst(t *testing.T) {
	model, _, _ := newTestModel(t)

	view := model.View()
	bob := strings.Index(view, "Bob")
	alice := strings.Index(view, "Alice")
	require.NotEqual(t, -1, bob)
	require.NotEqual(t, -1, alice)
	require.Less(t, bob, alice)
	require.Contains(t, view, "Select a conversation")
}

func TestCursorMovement(t *testing.T) {
	model, _, _ := newTestModel(t)

	model = applyUpdate(t, model, runeKey('j'))
	require.Equal(t, 1, model.cursor)
	model = applyUpdate(t, model, runeKey('j'))
	require.Equal(t, 1, model.cursor)
	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyUp})
	require.Equal(t, 0, model.cursor)
	model = applyUpdate(t, model, runeKey('k'))
	require.Equal(t, 0, model.cursor)
}

func TestOpenConversationAndSend(t *testing.T) {
	model, session, provider := newTestModel(t)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	model = runCmd(t, model, cmd)
	require.Equal(t, "c-new", model.state.Selected)
	require.Equal(t, focusCompose, model.focus)
	require.Contains(t, model.View(), "hello from bob")

	model = typeText(t, model, "hi bob")
	require.Equal(t, "hi bob", session.Draft())

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, model.input.Value(), "input clears before the send completes")

	model = runCmd(t, model, cmd)
	require.Equal(t, []string{"R2:hi bob"}, provider.sends)
	require.False(t, model.state.Sending)
}

func TestBlankSendDoesNothing(t *testing.T) {
	model, _, provider := newTestModel(t)
	model = runCmd(t, model, func() tea.Cmd { _, c := model.Update(tea.KeyMsg{Type: tea.KeyEnter}); return c }())

	model = typeText(t, model, "   ")
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, provider.sends)
}

func TestEscClearsSelection(t *testing.T) {
	model, _, _ := newTestModel(t)
	model = runCmd(t, model, func() tea.Cmd { _, c := model.Update(tea.KeyMsg{Type: tea.KeyEnter}); return c }())
	require.Equal(t, "c-new", model.state.Selected)

	model = applyUpdate(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, focusList, model.focus)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	model = runCmd(t, model, cmd)
	require.Empty(t, model.state.Selected)
	require.Empty(t, model.state.Messages)
}

func TestSessionEventRefreshesSnapshot(t *testing.T) {
	pub := events.NewInMemoryPublisher()
	ch, unsubscribe, err := Subscribe(pub)
	require.NoError(t, err)
	defer unsubscribe()

	provider := &stubProvider{
		conversations: []graph.ConversationNode{conversation("c-1", "Alice", "R1", "hi", baseTime)},
	}
	session := inbox.NewSession(provider, inbox.Config{}, inbox.WithPublisher(pub))
	model := NewModel(context.Background(), session, nil, ch, Config{})
	require.Empty(t, model.state.Conversations)

	cmd := model.Init()
	require.NotNil(t, cmd)

	_, err = session.FetchConversations(context.Background())
	require.NoError(t, err)

	msg := cmd()
	event, ok := msg.(sessionEventMsg)
	require.True(t, ok)
	require.Equal(t, models.EventTypeConversationsRefreshed, event.event.Type)

	model = applyUpdate(t, model, msg)
	require.Len(t, model.state.Conversations, 1)
}

func TestSubscribeNeverBlocksPublisher(t *testing.T) {
	pub := events.NewInMemoryPublisher()
	_, unsubscribe, err := Subscribe(pub)
	require.NoError(t, err)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer*2; i++ {
			pub.Publish(context.Background(), events.NewEvent(models.EventTypeMessagesRefreshed, "c-1", nil))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestQuitKeys(t *testing.T) {
	model, _, _ := newTestModel(t)

	_, cmd := model.Update(runeKey('q'))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)

	_, cmd = model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok = cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestRenderMessageMarksPending(t *testing.T) {
	model, _, _ := newTestModel(t)
	out := model.renderMessage(models.Message{ID: models.PendingID(baseTime), Content: "hold on", IsFromPage: true}, "Bob", 40)
	require.Contains(t, out, "You")
	require.Contains(t, out, "(sending...)")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "hello world", Truncate("hello\n  world", 20))
	require.Equal(t, "hello w…", Truncate("hello world", 8))
	require.Equal(t, "", Truncate("hello", 0))
}
