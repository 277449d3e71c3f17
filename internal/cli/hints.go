// Package cli provides actionable next-step hints for CLI commands.
package cli

import (
	"fmt"
	"io"

	"github.com/tOgg1/pagechat/internal/models"
)

// HintContext provides context for generating relevant next steps.
type HintContext struct {
	// Action is the command that was executed (e.g., "send", "login")
	Action string

	// Conversation is the conversation involved (if any)
	Conversation *models.Conversation

	// SessionID is the assistant transcript session (if any)
	SessionID string
}

var hintOut io.Writer = stdOut

// PrintNextSteps prints contextual next steps after a successful command.
// Does nothing if JSON output is enabled.
func PrintNextSteps(ctx HintContext) {
	if IsJSONOutput() || IsJSONLOutput() {
		return
	}

	hints := generateHints(ctx)
	if len(hints) == 0 {
		return
	}

	fmt.Fprintln(hintOut)
	fmt.Fprintln(hintOut, "Next steps:")
	for _, hint := range hints {
		fmt.Fprintf(hintOut, "  %s\n", hint)
	}
}

// generateHints generates context-aware hints for the given action.
func generateHints(ctx HintContext) []string {
	switch ctx.Action {
	case "conversations":
		return hintsForConversations(ctx)
	case "messages":
		return hintsForMessages(ctx)
	case "send":
		return hintsForSend(ctx)
	case "login":
		return []string{
			"pagechat inbox                          # Open the live inbox",
			"pagechat logout                         # Sign out",
		}
	case "assistant":
		if ctx.SessionID == "" {
			return nil
		}
		return []string{
			fmt.Sprintf("pagechat assistant --resume %s   # Continue this chat", shortID(ctx.SessionID)),
		}
	default:
		return nil
	}
}

func hintsForConversations(ctx HintContext) []string {
	if ctx.Conversation == nil {
		return nil
	}
	ref := conversationRef(*ctx.Conversation)
	return []string{
		fmt.Sprintf("pagechat messages %s         # Read the newest conversation", ref),
		"pagechat inbox                          # Open the live inbox",
	}
}

func hintsForMessages(ctx HintContext) []string {
	if ctx.Conversation == nil {
		return nil
	}
	hints := make([]string, 0, 2)
	if ctx.Conversation.CanSend() {
		hints = append(hints, `pagechat send "<text>"                  # Reply in this conversation`)
	}
	hints = append(hints, fmt.Sprintf("pagechat inbox -c %s         # Follow it live", conversationRef(*ctx.Conversation)))
	return hints
}

func hintsForSend(ctx HintContext) []string {
	if ctx.Conversation == nil {
		return nil
	}
	return []string{
		fmt.Sprintf("pagechat messages %s         # See the thread", conversationRef(*ctx.Conversation)),
	}
}

// conversationRef is the shortest stable argument naming conv.
func conversationRef(conv models.Conversation) string {
	if conv.Name != "" && conv.Name != models.UnknownCounterpart {
		return fmt.Sprintf("%q", conv.Name)
	}
	return shortID(conv.ID)
}
