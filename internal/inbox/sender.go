package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/models"
)

// SetDraft replaces the compose text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Draft returns the compose text.
func (s *Session) Draft() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft
}

// Send sends the draft to recipientID in the selected conversation.
//
// It refuses silently (attempted is false, nothing changes) when the draft
// is blank, the recipient is blank, no conversation is selected or another
// send is in flight. Otherwise a pending message is appended and the draft
// cleared before the provider call. On failure the pending message is
// removed and the error slot set if the conversation is still selected;
// the draft stays cleared. On success the
// pending message is confirmed in place when the provider returns an ID,
// and after the settle delay the thread and conversation list are refetched.
func (s *Session) Send(ctx context.Context, recipientID string) (attempted bool, err error) {
	now := s.clock()

	s.mu.Lock()
	text := s.draft
	conversationID := s.selected
	epoch := s.epoch
	if strings.TrimSpace(text) == "" || strings.TrimSpace(recipientID) == "" || conversationID == "" || s.sending {
		s.mu.Unlock()
		return false, nil
	}

	pending := models.Message{
		ID:         models.PendingID(now),
		SenderID:   s.pageID,
		Content:    text,
		Timestamp:  now,
		IsFromPage: true,
	}
	s.messages = append(s.messages, pending)
	s.draft = ""
	s.sending = true
	s.messageError = ""
	s.inflight[pending.ID] = true
	s.mu.Unlock()

	s.emit(ctx, models.EventTypeMessagePending, conversationID, models.SendPayload{MessageID: pending.ID, RecipientID: recipientID})

	logger := s.logger.With().
		Str("conversation_id", conversationID).
		Str("pending_id", pending.ID).
		Logger()

	result, sendErr := s.provider.SendMessage(ctx, recipientID, text)

	s.mu.Lock()
	s.sending = false
	delete(s.inflight, pending.ID)

	if sendErr != nil {
		s.messages = models.RemoveMessage(s.messages, pending.ID)
		cancelled := isCancellation(sendErr)
		if !cancelled && s.selected == conversationID && s.epoch == epoch {
			s.messageError = sendErrorMessage(sendErr)
		}
		s.mu.Unlock()

		if cancelled {
			return true, sendErr
		}
		logger.Error().Err(sendErr).Msg("failed to send message")
		s.emit(ctx, models.EventTypeMessageFailed, conversationID, models.SendPayload{
			MessageID:   pending.ID,
			RecipientID: recipientID,
			Error:       sendErr.Error(),
		})
		return true, sendErr
	}

	if result != nil && result.MessageID != "" {
		s.confirmPending(pending.ID, result.MessageID)
	}
	s.mu.Unlock()

	messageID := pending.ID
	if result != nil && result.MessageID != "" {
		messageID = result.MessageID
	}
	logger.Info().Str("message_id", messageID).Msg("message sent")
	s.emit(ctx, models.EventTypeMessageSent, conversationID, models.SendPayload{MessageID: messageID, RecipientID: recipientID})

	s.reconcileAfterSend(ctx, conversationID)
	return true, nil
}

// confirmPending gives the pending message its provider ID, or drops it if
// a refetch already delivered the canonical record. Caller holds mu.
func (s *Session) confirmPending(pendingID, messageID string) {
	for _, msg := range s.messages {
		if msg.ID == messageID {
			s.messages = models.RemoveMessage(s.messages, pendingID)
			return
		}
	}
	for i := range s.messages {
		if s.messages[i].ID == pendingID {
			s.messages[i].ID = messageID
			return
		}
	}
}

// reconcileAfterSend waits the settle delay, then refetches the thread and
// the conversation list as one cycle.
func (s *Session) reconcileAfterSend(ctx context.Context, conversationID string) {
	if delay := s.config.SendSettleDelay; delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if err := s.acquireCycle(ctx); err != nil {
		return
	}
	defer s.releaseCycle()

	if _, err := s.FetchMessages(ctx, conversationID); err != nil && isCancellation(err) {
		return
	}
	_, _ = s.FetchConversations(ctx)
}

func sendErrorMessage(err error) string {
	msg := graph.ProviderMessage(err)
	if msg == "" {
		msg = UnknownSendError
	}
	return SendErrorPrefix + msg
}
