package inbox

import (
	"context"
	"time"

	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

// FetchMessages refetches the thread of conversationID and replaces the
// displayed messages, oldest first. The response is applied only while the
// conversation is still selected and no newer response has been applied.
// Pending messages whose send is still in flight are kept.
func (s *Session) FetchMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	if conversationID == "" {
		return nil, nil
	}

	s.mu.Lock()
	s.nextMessageSeq++
	seq := s.nextMessageSeq
	epoch := s.epoch
	s.messageError = ""
	s.loading++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	logger := s.logger.With().Str("conversation_id", conversationID).Uint64("seq", seq).Logger()

	nodes, err := s.provider.ListMessages(ctx, conversationID, 0)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to fetch messages")

		s.mu.Lock()
		applied := s.isCurrentMessageResponse(seq, epoch, conversationID)
		if applied {
			s.appliedMessageSeq = seq
			s.messages = nil
			s.messageError = MessagesErrorMessage
		}
		s.mu.Unlock()

		if applied {
			s.emit(ctx, models.EventTypeSyncError, conversationID, models.ErrorPayload{Error: err.Error(), Context: "messages"})
		}
		return nil, err
	}

	msgs := buildMessages(nodes, s.pageID)
	newest := models.NewestTimestamp(msgs)

	s.mu.Lock()
	if !s.isCurrentMessageResponse(seq, epoch, conversationID) {
		s.mu.Unlock()
		logger.Debug().Msg("discarding stale message response")
		return msgs, nil
	}
	s.appliedMessageSeq = seq
	for _, msg := range s.messages {
		if msg.Pending() && s.inflight[msg.ID] {
			msgs = append(msgs, msg)
		}
	}
	s.messages = msgs
	if len(nodes) > 0 {
		s.newest = newest
		s.hasNewest = true
	}
	s.mu.Unlock()

	s.emit(ctx, models.EventTypeMessagesRefreshed, conversationID, models.RefreshedPayload{Count: len(msgs), Sequence: seq})
	return append([]models.Message(nil), msgs...), nil
}

// NewestSeen returns the newest message timestamp seen for the selected
// conversation.
func (s *Session) NewestSeen() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newest, s.hasNewest
}

// buildMessages converts provider nodes into thread messages, oldest first.
func buildMessages(nodes []graph.MessageNode, pageID string) []models.Message {
	msgs := make([]models.Message, 0, len(nodes))
	for _, node := range nodes {
		ts, _ := graph.ParseTime(node.CreatedTime)
		msgs = append(msgs, models.Message{
			ID:         node.ID,
			SenderID:   node.From.ID,
			Content:    node.Message,
			Timestamp:  ts,
			IsFromPage: node.From.ID == pageID,
		})
	}
	models.SortMessages(msgs)
	return msgs
}

// newestNodeTime returns the latest parseable created_time among nodes.
func newestNodeTime(nodes []graph.MessageNode) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, node := range nodes {
		ts, err := graph.ParseTime(node.CreatedTime)
		if err != nil {
			continue
		}
		if !found || ts.After(newest) {
			newest = ts
			found = true
		}
	}
	return newest, found
}
