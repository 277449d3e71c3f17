package inbox

import (
	"context"
	"time"

	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

// FetchConversations refetches the conversation list and replaces the
// current one. On failure the list is emptied and the error slot set. A
// response older than the last applied one is discarded.
func (s *Session) FetchConversations(ctx context.Context) ([]models.Conversation, error) {
	s.mu.Lock()
	s.nextConversationSeq++
	seq := s.nextConversationSeq
	s.conversationError = ""
	s.mu.Unlock()

	nodes, err := s.provider.ListConversations(ctx)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		s.logger.Error().Err(err).Uint64("seq", seq).Msg("failed to fetch conversations")

		s.mu.Lock()
		applied := seq > s.appliedConversationSeq
		if applied {
			s.appliedConversationSeq = seq
			s.conversations = nil
			s.conversationError = ConversationsErrorMessage
		}
		s.mu.Unlock()

		if applied {
			s.emit(ctx, models.EventTypeSyncError, "", models.ErrorPayload{Error: err.Error(), Context: "conversations"})
		}
		return nil, err
	}

	convs := buildConversations(nodes, s.pageID, s.clock())

	s.mu.Lock()
	if seq <= s.appliedConversationSeq {
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Msg("discarding stale conversation response")
		return convs, nil
	}
	s.appliedConversationSeq = seq
	s.conversations = convs
	s.mu.Unlock()

	s.emit(ctx, models.EventTypeConversationsRefreshed, "", models.RefreshedPayload{Count: len(convs), Sequence: seq})
	return append([]models.Conversation(nil), convs...), nil
}

// buildConversations converts provider nodes into display records, newest
// first.
func buildConversations(nodes []graph.ConversationNode, pageID string, fetchedAt time.Time) []models.Conversation {
	convs := make([]models.Conversation, 0, len(nodes))
	for _, node := range nodes {
		convs = append(convs, buildConversation(node, pageID, fetchedAt))
	}
	models.SortConversations(convs)
	return convs
}

func buildConversation(node graph.ConversationNode, pageID string, fetchedAt time.Time) models.Conversation {
	conv := models.Conversation{
		ID:          node.ID,
		Name:        models.UnknownCounterpart,
		LastMessage: models.NoMessagesPreview,
		Timestamp:   fetchedAt,
	}

	if p, ok := node.Counterpart(pageID); ok {
		conv.RecipientID = p.ID
		if p.Name != "" {
			conv.Name = p.Name
		}
	}

	if latest, ok := node.LatestMessage(); ok {
		if latest.Message != "" {
			conv.LastMessage = latest.Message
		}
		if ts, err := graph.ParseTime(latest.CreatedTime); err == nil {
			conv.Timestamp = ts
		}
	}

	return conv
}
