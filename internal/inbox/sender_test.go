package inbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

func selectedSession(t *testing.T, provider *fakeProvider, opts ...Option) *Session {
	t.Helper()
	provider.setMessages("c-1", msgNode("m1", "R1", "hi", baseTime))
	session := newTestSession(t, provider, opts...)
	session.Select(context.Background(), "c-1")
	_, err := session.FetchMessages(context.Background(), "c-1")
	require.NoError(t, err)
	return session
}

func TestSend_RefusesSilently(t *testing.T) {
	tests := []struct {
		name      string
		draft     string
		recipient string
		selected  bool
	}{
		{name: "blank text", draft: "   ", recipient: "R1", selected: true},
		{name: "empty text", draft: "", recipient: "R1", selected: true},
		{name: "blank recipient", draft: "hello", recipient: " ", selected: true},
		{name: "no selection", draft: "hello", recipient: "R1", selected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			var session *Session
			if tt.selected {
				session = selectedSession(t, provider)
			} else {
				session = newTestSession(t, provider)
			}
			session.SetDraft(tt.draft)
			before := session.Snapshot()

			attempted, err := session.Send(context.Background(), tt.recipient)
			require.NoError(t, err)
			assert.False(t, attempted)
			assert.Empty(t, provider.sent())
			assert.Equal(t, before, session.Snapshot())
		})
	}
}

func TestSend_RefusesWhileInFlight(t *testing.T) {
	provider := newFakeProvider()
	started := make(chan struct{})
	release := make(chan struct{})
	provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
		close(started)
		<-release
		return &graph.SendResult{RecipientID: "R1", MessageID: "m-sent"}, nil
	}
	session := selectedSession(t, provider)

	session.SetDraft("first")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = session.Send(context.Background(), "R1")
	}()
	<-started

	session.SetDraft("second")
	attempted, err := session.Send(context.Background(), "R1")
	require.NoError(t, err)
	assert.False(t, attempted)
	assert.Equal(t, "second", session.Draft())

	close(release)
	<-done
	assert.Len(t, provider.sent(), 1)
}

func TestSend_OptimisticAppend(t *testing.T) {
	provider := newFakeProvider()
	var during State
	clock := newTestClock()
	session := selectedSession(t, provider, WithClock(clock.Now))
	provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
		during = session.Snapshot()
		return &graph.SendResult{RecipientID: "R1"}, nil
	}

	session.SetDraft("hello")
	attempted, err := session.Send(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, attempted)

	require.Equal(t, []sentMessage{{RecipientID: "R1", Text: "hello"}}, provider.sent())

	require.Len(t, during.Messages, 2)
	pending := during.Messages[1]
	assert.True(t, strings.HasPrefix(pending.ID, models.PendingIDPrefix))
	assert.Equal(t, "hello", pending.Content)
	assert.True(t, pending.IsFromPage)
	assert.Equal(t, testPageID, pending.SenderID)
	assert.Empty(t, during.Draft)
	assert.True(t, during.Sending)

	assert.False(t, session.Snapshot().Sending)
}

func TestSend_FailureRollsBack(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{
			name:    "provider message",
			err:     &graph.APIError{StatusCode: 400, Message: "(#100) No matching user found"},
			wantErr: "Failed to send message: (#100) No matching user found",
		},
		{
			name:    "transport failure",
			err:     errors.New("dial tcp: connection refused"),
			wantErr: "Failed to send message: Unknown error",
		},
		{
			name:    "non-2xx without payload",
			err:     &graph.APIError{StatusCode: 502},
			wantErr: "Failed to send message: Unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.sendErr = tt.err
			pub, rec := newRecorder(t)
			session := selectedSession(t, provider, WithPublisher(pub))
			before := len(session.Snapshot().Messages)

			session.SetDraft("hello")
			attempted, err := session.Send(context.Background(), "R1")
			require.Error(t, err)
			assert.True(t, attempted)

			state := session.Snapshot()
			assert.Len(t, state.Messages, before)
			for _, msg := range state.Messages {
				assert.False(t, msg.Pending())
			}
			assert.Equal(t, tt.wantErr, state.MessageError)
			assert.Empty(t, state.Draft, "draft is not restored")
			assert.False(t, state.Sending)
			assert.Contains(t, rec.types(), models.EventTypeMessageFailed)
		})
	}
}

func TestSend_FailureAfterSwitchLeavesNewThreadClean(t *testing.T) {
	tests := []struct {
		name     string
		switchTo []string
	}{
		{name: "other conversation", switchTo: []string{"c-2"}},
		{name: "away and back", switchTo: []string{"c-2", "c-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			started := make(chan struct{})
			release := make(chan struct{})
			provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
				close(started)
				<-release
				return nil, errors.New("dial tcp: connection refused")
			}
			pub, rec := newRecorder(t)
			session := selectedSession(t, provider, WithPublisher(pub))

			session.SetDraft("hello")
			done := make(chan error, 1)
			go func() {
				_, err := session.Send(context.Background(), "R1")
				done <- err
			}()
			<-started

			for _, id := range tt.switchTo {
				session.Select(context.Background(), id)
			}
			close(release)
			require.Error(t, <-done)

			state := session.Snapshot()
			assert.Equal(t, tt.switchTo[len(tt.switchTo)-1], state.Selected)
			assert.Empty(t, state.MessageError)
			assert.False(t, state.Sending)
			assert.Contains(t, rec.types(), models.EventTypeMessageFailed)
		})
	}
}

func TestSend_SuccessReconcilesByRefetch(t *testing.T) {
	provider := newFakeProvider()
	pub, rec := newRecorder(t)
	session := selectedSession(t, provider, WithPublisher(pub))
	fullBefore := fullFetches(provider.messageCallLog())

	provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
		provider.setMessages("c-1",
			msgNode("m1", "R1", "hi", baseTime),
			msgNode("m-sent", testPageID, "hello", baseTime.Add(time.Minute)),
		)
		return &graph.SendResult{RecipientID: "R1", MessageID: "m-sent"}, nil
	}

	session.SetDraft("hello")
	attempted, err := session.Send(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, attempted)

	assert.Equal(t, fullBefore+1, fullFetches(provider.messageCallLog()))
	assert.Equal(t, 1, provider.conversationCalls())

	state := session.Snapshot()
	assert.Equal(t, []string{"m1", "m-sent"}, messageIDs(state.Messages))
	assert.Empty(t, state.MessageError)
	assert.Subset(t, rec.types(), []models.EventType{models.EventTypeMessagePending, models.EventTypeMessageSent})
}

func TestSend_SuccessWithoutMessageIDDropsPendingOnRefetch(t *testing.T) {
	provider := newFakeProvider()
	session := selectedSession(t, provider)

	provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
		provider.setMessages("c-1",
			msgNode("m1", "R1", "hi", baseTime),
			msgNode("m-sent", testPageID, "hello", baseTime.Add(time.Minute)),
		)
		return &graph.SendResult{RecipientID: "R1"}, nil
	}

	session.SetDraft("hello")
	_, err := session.Send(context.Background(), "R1")
	require.NoError(t, err)

	for _, msg := range session.Snapshot().Messages {
		assert.False(t, msg.Pending(), "pending message superseded")
	}
}

func TestSend_SettleDelayPrecedesRefetch(t *testing.T) {
	provider := newFakeProvider()
	provider.setMessages("c-1", msgNode("m1", "R1", "hi", baseTime))
	cfg := fastConfig()
	cfg.SendSettleDelay = 30 * time.Millisecond
	session := NewSession(provider, cfg)
	session.Select(context.Background(), "c-1")

	var sentAt time.Time
	provider.sendHook = func(ctx context.Context) (*graph.SendResult, error) {
		sentAt = time.Now()
		return &graph.SendResult{RecipientID: "R1", MessageID: "m-sent"}, nil
	}
	var refetchAt time.Time
	provider.listMessagesHook = func(ctx context.Context, call int, conversationID string, limit int) ([]graph.MessageNode, error) {
		refetchAt = time.Now()
		return nil, nil
	}

	session.SetDraft("hello")
	_, err := session.Send(context.Background(), "R1")
	require.NoError(t, err)
	require.False(t, refetchAt.IsZero())
	assert.GreaterOrEqual(t, refetchAt.Sub(sentAt), cfg.SendSettleDelay)
}

func TestSend_CancelledSettleSkipsRefetch(t *testing.T) {
	provider := newFakeProvider()
	cfg := fastConfig()
	cfg.SendSettleDelay = time.Hour
	session := NewSession(provider, cfg)
	session.Select(context.Background(), "c-1")

	ctx, cancel := context.WithCancel(context.Background())
	provider.sendHook = func(context.Context) (*graph.SendResult, error) {
		cancel()
		return &graph.SendResult{RecipientID: "R1", MessageID: "m-sent"}, nil
	}

	session.SetDraft("hello")
	attempted, err := session.Send(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, attempted)
	assert.Empty(t, provider.messageCallLog())
}

func TestConfirmPending(t *testing.T) {
	session := newTestSession(t, newFakeProvider())
	pendingID := models.PendingID(baseTime)

	session.mu.Lock()
	session.messages = []models.Message{{ID: "m1"}, {ID: pendingID}}
	session.confirmPending(pendingID, "m-sent")
	got := messageIDs(session.messages)
	session.mu.Unlock()
	assert.Equal(t, []string{"m1", "m-sent"}, got)

	session.mu.Lock()
	session.messages = []models.Message{{ID: "m1"}, {ID: "m-sent"}, {ID: pendingID}}
	session.confirmPending(pendingID, "m-sent")
	got = messageIDs(session.messages)
	session.mu.Unlock()
	assert.Equal(t, []string{"m1", "m-sent"}, got)
}
