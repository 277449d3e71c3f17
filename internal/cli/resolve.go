// Package cli provides CLI helpers for resolving IDs and names.
package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

// findConversation resolves a conversation by full ID, ID prefix or
// counterpart name.
func findConversation(conversations []models.Conversation, idOrName string) (models.Conversation, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return models.Conversation{}, errors.New("conversation ID or name required")
	}

	if conv, ok := models.FindConversation(conversations, idOrName); ok {
		return conv, nil
	}

	matches := matchConversations(conversations, idOrName)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return models.Conversation{}, fmt.Errorf("conversation '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", idOrName, formatConversationMatches(matches))
	}
	if len(conversations) == 0 {
		return models.Conversation{}, fmt.Errorf("conversation '%s' not found (the inbox is empty)", idOrName)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", conversations[0].Name, shortID(conversations[0].ID))
	return models.Conversation{}, fmt.Errorf("conversation '%s' not found. %s", idOrName, example)
}

func matchConversations(conversations []models.Conversation, query string) []models.Conversation {
	lowered := strings.ToLower(query)

	var byName []models.Conversation
	for _, conv := range conversations {
		if strings.EqualFold(conv.Name, query) {
			byName = append(byName, conv)
		}
	}
	if len(byName) > 0 {
		return byName
	}

	var matches []models.Conversation
	for _, conv := range conversations {
		if strings.HasPrefix(conv.ID, query) || strings.HasPrefix(strings.ToLower(conv.Name), lowered) {
			matches = append(matches, conv)
		}
	}
	return matches
}

func formatConversationMatches(matches []models.Conversation) string {
	labels := make([]string, 0, len(matches))
	for _, conv := range matches {
		labels = append(labels, fmt.Sprintf("%s (%s)", conv.Name, shortID(conv.ID)))
	}
	sort.Strings(labels)
	if len(labels) > maxSuggestions {
		labels = append(labels[:maxSuggestions], fmt.Sprintf("and %d more", len(matches)-maxSuggestions))
	}
	return strings.Join(labels, ", ")
}

// resolveConversation fetches the conversation list and resolves
// idOrName. An empty idOrName falls back to the saved CLI context.
func resolveConversation(ctx context.Context, session *inbox.Session, store *config.ContextStore, idOrName string) (models.Conversation, error) {
	if strings.TrimSpace(idOrName) == "" && store != nil {
		saved, err := store.Load()
		if err != nil {
			return models.Conversation{}, err
		}
		if saved.IsEmpty() {
			return models.Conversation{}, &PreflightError{
				Message:  "no conversation given and no context set",
				Hint:     "open a conversation first or pass its ID or name",
				NextStep: "pagechat conversations",
			}
		}
		idOrName = saved.ConversationID
	}

	conversations, err := session.FetchConversations(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	return findConversation(conversations, idOrName)
}

// rememberConversation records conv as the CLI context. Failures only log.
func rememberConversation(store *config.ContextStore, conv models.Conversation) {
	if store == nil {
		return
	}
	saved, err := store.Load()
	if err != nil {
		saved = &config.Context{}
	}
	saved.SetConversation(conv.ID, conv.Name)
	if err := store.Save(saved); err != nil && IsVerbose() {
		fmt.Fprintf(errOut, "warning: failed to save context: %v\n", err)
	}
}
