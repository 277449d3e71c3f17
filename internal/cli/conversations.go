package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/models"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(messagesCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs", "ls"},
	Short:   "List page conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.requireOperator(ctx); err != nil {
			return err
		}
		session, err := a.newSession(ctx)
		if err != nil {
			return err
		}

		conversations, err := session.FetchConversations(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", inbox.ConversationsErrorMessage, err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), conversationViews(session, conversations))
		}
		if len(conversations) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
			return err
		}
		if err := writeConversationTable(cmd.OutOrStdout(), session, conversations); err != nil {
			return err
		}
		PrintNextSteps(HintContext{Action: "conversations", Conversation: &conversations[0]})
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages [conversation]",
	Short: "Show a conversation thread, oldest first",
	Long: `Show a conversation thread. The conversation may be given by ID, ID prefix
or counterpart name; without one the last opened conversation is used.
Opening a thread marks it viewed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.requireOperator(ctx); err != nil {
			return err
		}
		session, err := a.newSession(ctx)
		if err != nil {
			return err
		}

		var target string
		if len(args) > 0 {
			target = args[0]
		}
		store := config.NewContextStore(a.cfg.ContextPath())
		conv, err := resolveConversation(ctx, session, store, target)
		if err != nil {
			return err
		}

		session.Select(ctx, conv.ID)
		rememberConversation(store, conv)
		messages, err := session.FetchMessages(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", inbox.MessagesErrorMessage, err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), messages)
		}
		if len(messages) == 0 {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "No messages with %s.\n", conv.Name)
			return err
		}
		if err := writeMessageTable(cmd.OutOrStdout(), conv, messages); err != nil {
			return err
		}
		PrintNextSteps(HintContext{Action: "messages", Conversation: &conv})
		return nil
	},
}

// conversationView is the JSON shape of a listed conversation.
type conversationView struct {
	models.Conversation
	Unseen bool `json:"unseen"`
}

func conversationViews(session *inbox.Session, conversations []models.Conversation) []conversationView {
	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, conversationView{Conversation: conv, Unseen: session.HasUnseen(conv)})
	}
	return views
}
