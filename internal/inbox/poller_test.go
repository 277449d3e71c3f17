package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startPoller(t *testing.T, session *Session) *Poller {
	t.Helper()
	poller := NewPoller(session)
	require.NoError(t, poller.Start(context.Background()))
	t.Cleanup(func() {
		if poller.IsRunning() {
			_ = poller.Stop()
		}
	})
	return poller
}

func callsFor(calls []messageCall, conversationID string) int {
	n := 0
	for _, c := range calls {
		if c.ConversationID == conversationID {
			n++
		}
	}
	return n
}

func TestPoller_StartStopErrors(t *testing.T) {
	poller := NewPoller(newTestSession(t, newFakeProvider()))
	assert.Equal(t, PollerStopped, poller.State())

	assert.ErrorIs(t, poller.Stop(), ErrPollerNotRunning)
	assert.ErrorIs(t, poller.Select("c-1"), ErrPollerNotRunning)

	require.NoError(t, poller.Start(context.Background()))
	assert.True(t, poller.IsRunning())
	assert.Equal(t, PollerIdle, poller.State())
	assert.ErrorIs(t, poller.Start(context.Background()), ErrPollerAlreadyRunning)

	require.NoError(t, poller.Stop())
	assert.False(t, poller.IsRunning())
	assert.Equal(t, PollerStopped, poller.State())
}

func TestPoller_ConversationLoopRefreshes(t *testing.T) {
	provider := newFakeProvider()
	clock := newTestClock()
	session := newTestSession(t, provider, WithClock(clock.Now))
	initial := session.Snapshot().LastRefreshed

	startPoller(t, session)

	require.Eventually(t, func() bool { return provider.conversationCalls() >= 3 }, waitFor, tick)
	assert.True(t, session.Snapshot().LastRefreshed.After(initial))
	assert.Empty(t, provider.messageCallLog(), "no thread polling without a selection")
}

func TestPoller_SelectStartsThreadLoop(t *testing.T) {
	provider := newFakeProvider()
	provider.setMessages("c-1", msgNode("m1", "u-1", "hi", baseTime))
	session := newTestSession(t, provider)
	poller := startPoller(t, session)

	require.NoError(t, poller.Select("c-1"))
	assert.Equal(t, PollerPolling, poller.State())
	assert.Equal(t, "c-1", poller.ActiveConversation())

	require.Eventually(t, func() bool {
		return len(session.Snapshot().Messages) == 1
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		for _, c := range provider.messageCallLog() {
			if c.Limit == session.Config().StalenessPageSize {
				return true
			}
		}
		return false
	}, waitFor, tick, "staleness checks run on the thread loop")
}

func TestPoller_SwitchCancelsPreviousLoop(t *testing.T) {
	provider := newFakeProvider()
	provider.setMessages("c-a", msgNode("ma", "u-1", "a", baseTime))
	provider.setMessages("c-b", msgNode("mb", "u-2", "b", baseTime))
	session := newTestSession(t, provider)
	poller := startPoller(t, session)

	require.NoError(t, poller.Select("c-a"))
	require.Eventually(t, func() bool {
		return callsFor(provider.messageCallLog(), "c-a") >= 3
	}, waitFor, tick)

	require.NoError(t, poller.Select("c-b"))
	mark := len(provider.messageCallLog())
	assert.Equal(t, "c-b", poller.ActiveConversation())

	require.Eventually(t, func() bool {
		return callsFor(provider.messageCallLog()[mark:], "c-b") >= 3
	}, waitFor, tick)

	after := provider.messageCallLog()[mark:]
	assert.Zero(t, callsFor(after, "c-a"), "previous loop exited before the switch returned")
	assert.Equal(t, []string{"mb"}, messageIDs(session.Snapshot().Messages))
}

func TestPoller_SelectNoneStopsThreadLoop(t *testing.T) {
	provider := newFakeProvider()
	provider.setMessages("c-1", msgNode("m1", "u-1", "hi", baseTime))
	session := newTestSession(t, provider)
	poller := startPoller(t, session)

	require.NoError(t, poller.Select("c-1"))
	require.Eventually(t, func() bool {
		_, ok := session.NewestSeen()
		return ok
	}, waitFor, tick)

	require.NoError(t, poller.Select(""))
	assert.Equal(t, PollerIdle, poller.State())
	assert.Empty(t, poller.ActiveConversation())

	mark := len(provider.messageCallLog())
	time.Sleep(5 * session.Config().MessageInterval)

	assert.Len(t, provider.messageCallLog(), mark)
	assert.Empty(t, session.Snapshot().Messages)
	_, ok := session.NewestSeen()
	assert.False(t, ok)
}

func TestPoller_StartResumesSelection(t *testing.T) {
	provider := newFakeProvider()
	session := newTestSession(t, provider)
	session.Select(context.Background(), "c-1")

	poller := startPoller(t, session)
	assert.Equal(t, "c-1", poller.ActiveConversation())
	require.Eventually(t, func() bool {
		return callsFor(provider.messageCallLog(), "c-1") > 0
	}, waitFor, tick)
}

func TestPoller_StopHaltsAllLoops(t *testing.T) {
	provider := newFakeProvider()
	session := newTestSession(t, provider)
	poller := startPoller(t, session)
	require.NoError(t, poller.Select("c-1"))

	require.Eventually(t, func() bool {
		return provider.conversationCalls() >= 2 && len(provider.messageCallLog()) >= 2
	}, waitFor, tick)

	require.NoError(t, poller.Stop())
	assert.Empty(t, poller.ActiveConversation())

	convCalls := provider.conversationCalls()
	msgCalls := len(provider.messageCallLog())
	time.Sleep(5 * session.Config().ConversationInterval)

	assert.Equal(t, convCalls, provider.conversationCalls())
	assert.Len(t, provider.messageCallLog(), msgCalls)
}

func TestPoller_RefreshDelegates(t *testing.T) {
	provider := newFakeProvider()
	session := newTestSession(t, provider)
	poller := NewPoller(session)

	require.NoError(t, poller.Refresh(context.Background()))
	assert.Equal(t, 1, provider.conversationCalls())
}
