package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/models"
)

func init() {
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send [conversation] <text>",
	Short: "Send a text reply",
	Long: `Send a text reply to a conversation. With a single argument the text goes
to the last opened conversation.`,
	Example: `  pagechat send alice "Thanks, we will ship today"
  pagechat send "On its way"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		target, text := "", args[0]
		if len(args) == 2 {
			target, text = args[0], args[1]
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("message text is empty")
		}

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

		store := config.NewContextStore(a.cfg.ContextPath())
		conv, err := resolveConversation(ctx, session, store, target)
		if err != nil {
			return err
		}
		if !conv.CanSend() {
			return fmt.Errorf("cannot reply to %s: %w", conv.Name, models.ErrRecipientUnresolved)
		}

		session.Select(ctx, conv.ID)
		rememberConversation(store, conv)
		session.SetDraft(text)

		attempted, err := session.Send(ctx, conv.RecipientID)
		if !attempted {
			return errors.New("nothing was sent")
		}
		if err != nil {
			if msg := session.Snapshot().MessageError; msg != "" {
				return errors.New(msg)
			}
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), map[string]any{
				"conversation_id": conv.ID,
				"recipient_id":    conv.RecipientID,
				"sent":            true,
				"messages":        session.Snapshot().Messages,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s.\n", conv.Name)
		PrintNextSteps(HintContext{Action: "send", Conversation: &conv})
		return nil
	},
}
