package inbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

const testPageID = "page-1"

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	RecipientID string
	Text        string
}

type messageCall struct {
	ConversationID string
	Limit          int
}

// fakeProvider is a programmable Provider. The optional hook fields replace
// the canned responses and may block.
type fakeProvider struct {
	mu sync.Mutex

	conversations []graph.ConversationNode
	convErr       error
	messages      map[string][]graph.MessageNode
	msgErr        error
	sendResult    *graph.SendResult
	sendErr       error

	listConversationsHook func(ctx context.Context, call int) ([]graph.ConversationNode, error)
	listMessagesHook      func(ctx context.Context, call int, conversationID string, limit int) ([]graph.MessageNode, error)
	sendHook              func(ctx context.Context) (*graph.SendResult, error)

	convCalls    int
	messageCalls []messageCall
	sends        []sentMessage
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{messages: make(map[string][]graph.MessageNode)}
}

func (f *fakeProvider) PageID() string { return testPageID }

func (f *fakeProvider) ListConversations(ctx context.Context) ([]graph.ConversationNode, error) {
	f.mu.Lock()
	f.convCalls++
	call := f.convCalls
	hook := f.listConversationsHook
	nodes := append([]graph.ConversationNode(nil), f.conversations...)
	err := f.convErr
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, call)
	}
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, conversationID string, limit int) ([]graph.MessageNode, error) {
	f.mu.Lock()
	f.messageCalls = append(f.messageCalls, messageCall{ConversationID: conversationID, Limit: limit})
	call := len(f.messageCalls)
	hook := f.listMessagesHook
	nodes := append([]graph.MessageNode(nil), f.messages[conversationID]...)
	err := f.msgErr
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, call, conversationID, limit)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

func (f *fakeProvider) SendMessage(ctx context.Context, recipientID, text string) (*graph.SendResult, error) {
	f.mu.Lock()
	f.sends = append(f.sends, sentMessage{RecipientID: recipientID, Text: text})
	hook := f.sendHook
	result, err := f.sendResult, f.sendErr
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &graph.SendResult{RecipientID: recipientID}
	}
	return result, nil
}

func (f *fakeProvider) setMessages(conversationID string, nodes ...graph.MessageNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[conversationID] = nodes
}

func (f *fakeProvider) setConversations(nodes ...graph.ConversationNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = nodes
}

func (f *fakeProvider) conversationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}

func (f *fakeProvider) messageCallLog() []messageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]messageCall(nil), f.messageCalls...)
}

func (f *fakeProvider) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

// testClock hands out strictly increasing times.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func fastConfig() Config {
	return Config{
		ConversationInterval: 20 * time.Millisecond,
		MessageInterval:      10 * time.Millisecond,
		StalenessPageSize:    5,
		SendSettleDelay:      0,
	}
}

func newTestSession(t *testing.T, provider *fakeProvider, opts ...Option) *Session {
	t.Helper()
	return NewSession(provider, fastConfig(), opts...)
}

func graphTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05-0700")
}

func msgNode(id, from, text string, at time.Time) graph.MessageNode {
	return graph.MessageNode{
		ID:          id,
		Message:     text,
		From:        graph.Participant{ID: from, Name: from},
		CreatedTime: graphTime(at),
	}
}

func convNode(id string, counterpart graph.Participant, latest ...graph.MessageNode) graph.ConversationNode {
	var node graph.ConversationNode
	node.ID = id
	node.Participants.Data = []graph.Participant{
		{ID: testPageID, Name: "My Page"},
		counterpart,
	}
	if len(latest) > 0 {
		node.Messages = &struct {
			Data []graph.MessageNode `json:"data"`
		}{Data: latest}
	}
	return node
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []*models.Event
}

func newRecorder(t *testing.T) (*events.InMemoryPublisher, *recorder) {
	t.Helper()
	pub := events.NewInMemoryPublisher()
	rec := &recorder{}
	require.NoError(t, pub.Subscribe("test", events.Filter{}, func(e *models.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, e)
		rec.mu.Unlock()
	}))
	t.Cleanup(pub.Close)
	return pub, rec
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func messageIDs(msgs []models.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
