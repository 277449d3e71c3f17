package inbox

import (
	"context"
)

// CheckForNewMessages fetches a small page of the thread and, when its
// newest message is newer than the newest one seen (or none has been seen),
// refetches the thread and then the conversation list. It never touches the
// displayed messages itself. It reports whether a refetch ran; failures are
// logged and returned but never surfaced in the error slots.
func (s *Session) CheckForNewMessages(ctx context.Context, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, nil
	}

	nodes, err := s.provider.ListMessages(ctx, conversationID, s.config.StalenessPageSize)
	if err != nil {
		if !isCancellation(err) {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("staleness check failed")
		}
		return false, err
	}

	latest, ok := newestNodeTime(nodes)
	if !ok {
		return false, nil
	}

	s.mu.RLock()
	selected := s.selected == conversationID
	known, hasKnown := s.newest, s.hasNewest
	s.mu.RUnlock()

	if !selected {
		return false, nil
	}
	if hasKnown && !latest.After(known) {
		return false, nil
	}

	s.logger.Debug().
		Str("conversation_id", conversationID).
		Time("latest", latest).
		Time("known", known).
		Msg("new messages detected")

	if _, err := s.FetchMessages(ctx, conversationID); err != nil && isCancellation(err) {
		return true, err
	}
	if _, err := s.FetchConversations(ctx); err != nil && isCancellation(err) {
		return true, err
	}
	return true, nil
}
