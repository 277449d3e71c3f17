package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

func TestFetchConversations_NewestFirst(t *testing.T) {
	provider := newFakeProvider()
	t1 := baseTime.Add(-2 * time.Hour)
	t2 := baseTime.Add(-1 * time.Hour)
	provider.setConversations(
		convNode("c-old", graph.Participant{ID: "u-1", Name: "Alice"}, msgNode("m1", "u-1", "hi", t1)),
		convNode("c-new", graph.Participant{ID: "u-2", Name: "Bob"}, msgNode("m2", "u-2", "hey", t2)),
	)
	session := newTestSession(t, provider)

	convs, err := session.FetchConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c-new", convs[0].ID)
	assert.Equal(t, "c-old", convs[1].ID)

	state := session.Snapshot()
	require.Len(t, state.Conversations, 2)
	for i := 1; i < len(state.Conversations); i++ {
		assert.False(t, state.Conversations[i].Timestamp.After(state.Conversations[i-1].Timestamp))
	}
}

func TestFetchConversations_Fallbacks(t *testing.T) {
	provider := newFakeProvider()
	clock := newTestClock()

	var lonely graph.ConversationNode
	lonely.ID = "c-lonely"
	lonely.Participants.Data = []graph.Participant{{ID: testPageID, Name: "My Page"}}

	provider.setConversations(
		convNode("c-empty", graph.Participant{ID: "u-1", Name: "Alice"}),
		lonely,
		convNode("c-old", graph.Participant{ID: "u-2", Name: "Bob"}, msgNode("m1", "u-2", "", baseTime.Add(-time.Hour))),
	)
	session := newTestSession(t, provider, WithClock(clock.Now))

	convs, err := session.FetchConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 3)

	byID := make(map[string]models.Conversation)
	for _, c := range convs {
		byID[c.ID] = c
	}

	empty := byID["c-empty"]
	assert.Equal(t, "Alice", empty.Name)
	assert.Equal(t, models.NoMessagesPreview, empty.LastMessage)
	assert.Equal(t, "u-1", empty.RecipientID)
	assert.True(t, empty.Timestamp.After(baseTime), "no-message conversation uses fetch time")

	alone := byID["c-lonely"]
	assert.Equal(t, models.UnknownCounterpart, alone.Name)
	assert.Empty(t, alone.RecipientID)

	old := byID["c-old"]
	assert.Equal(t, models.NoMessagesPreview, old.LastMessage)
	assert.True(t, old.Timestamp.Equal(baseTime.Add(-time.Hour)))
	assert.Equal(t, "c-old", convs[2].ID, "fetch-time conversations sort before older activity")
}

func TestFetchConversations_CounterpartExcludesPage(t *testing.T) {
	var node graph.ConversationNode
	node.ID = "c-1"
	node.Participants.Data = []graph.Participant{
		{ID: "u-9", Name: "Zed"},
		{ID: testPageID, Name: "My Page"},
	}

	conv := buildConversation(node, testPageID, baseTime)
	assert.Equal(t, "Zed", conv.Name)
	assert.Equal(t, "u-9", conv.RecipientID)
	assert.True(t, conv.CanSend())
}

func TestFetchConversations_FailureEmptiesList(t *testing.T) {
	provider := newFakeProvider()
	provider.setConversations(convNode("c-1", graph.Participant{ID: "u-1", Name: "Alice"}, msgNode("m1", "u-1", "hi", baseTime)))
	pub, rec := newRecorder(t)
	session := newTestSession(t, provider, WithPublisher(pub))

	_, err := session.FetchConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, session.Snapshot().Conversations, 1)

	provider.mu.Lock()
	provider.convErr = errors.New("network unreachable")
	provider.mu.Unlock()

	convs, err := session.FetchConversations(context.Background())
	require.Error(t, err)
	assert.Nil(t, convs)

	state := session.Snapshot()
	assert.Empty(t, state.Conversations)
	assert.Equal(t, ConversationsErrorMessage, state.ConversationError)
	assert.Contains(t, rec.types(), models.EventTypeSyncError)

	provider.mu.Lock()
	provider.convErr = nil
	provider.mu.Unlock()

	_, err = session.FetchConversations(context.Background())
	require.NoError(t, err)
	state = session.Snapshot()
	assert.Empty(t, state.ConversationError)
	assert.Len(t, state.Conversations, 1)
}

func TestFetchConversations_DiscardsStaleResponse(t *testing.T) {
	provider := newFakeProvider()
	started := make(chan struct{})
	release := make(chan struct{})
	provider.listConversationsHook = func(ctx context.Context, call int) ([]graph.ConversationNode, error) {
		if call == 1 {
			close(started)
			<-release
			return []graph.ConversationNode{
				convNode("c-stale", graph.Participant{ID: "u-1", Name: "Stale"}, msgNode("m1", "u-1", "old", baseTime)),
			}, nil
		}
		return []graph.ConversationNode{
			convNode("c-fresh", graph.Participant{ID: "u-2", Name: "Fresh"}, msgNode("m2", "u-2", "new", baseTime)),
		}, nil
	}
	session := newTestSession(t, provider)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = session.FetchConversations(context.Background())
	}()
	<-started

	_, err := session.FetchConversations(context.Background())
	require.NoError(t, err)

	close(release)
	<-done

	state := session.Snapshot()
	require.Len(t, state.Conversations, 1)
	assert.Equal(t, "c-fresh", state.Conversations[0].ID)
}

func TestFetchConversations_StaleFailureKeepsFreshList(t *testing.T) {
	provider := newFakeProvider()
	started := make(chan struct{})
	release := make(chan struct{})
	provider.listConversationsHook = func(ctx context.Context, call int) ([]graph.ConversationNode, error) {
		if call == 1 {
			close(started)
			<-release
			return nil, errors.New("timeout")
		}
		return []graph.ConversationNode{
			convNode("c-fresh", graph.Participant{ID: "u-2", Name: "Fresh"}, msgNode("m2", "u-2", "new", baseTime)),
		}, nil
	}
	session := newTestSession(t, provider)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = session.FetchConversations(context.Background())
	}()
	<-started

	_, err := session.FetchConversations(context.Background())
	require.NoError(t, err)

	close(release)
	<-done

	state := session.Snapshot()
	assert.Len(t, state.Conversations, 1)
	assert.Empty(t, state.ConversationError)
}

func TestFetchConversations_CancellationIsSilent(t *testing.T) {
	provider := newFakeProvider()
	provider.listConversationsHook = func(ctx context.Context, call int) ([]graph.ConversationNode, error) {
		return nil, context.Canceled
	}
	session := newTestSession(t, provider)

	_, err := session.FetchConversations(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, session.Snapshot().ConversationError)
}
