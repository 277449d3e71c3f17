package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/assistant"
	"github.com/tOgg1/pagechat/internal/db"
	"github.com/tOgg1/pagechat/internal/models"
)

var (
	assistantImage  string
	assistantResume string
	sessionsLimit   int
)

func init() {
	rootCmd.AddCommand(assistantCmd)
	assistantCmd.AddCommand(assistantSessionsCmd)

	assistantCmd.Flags().StringVar(&assistantImage, "image", "", "attach an image to the first turn")
	assistantCmd.Flags().StringVar(&assistantResume, "resume", "", "continue a saved chat session")
	assistantSessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "max sessions to list")
}

var assistantCmd = &cobra.Command{
	Use:   "assistant [prompt]",
	Short: "Chat with the generative assistant",
	Long: `Chat with the generative assistant. With a prompt argument one turn is
answered and the command exits; otherwise an interactive chat reads lines
from stdin. In the chat, /image <path> attaches an image to the next turn,
/reset starts over and /quit exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg := GetConfig()
		if err := cfg.ValidateAssistant(); err != nil {
			return &PreflightError{
				Message:  err.Error(),
				Hint:     "set assistant.api_key in config.yaml or PAGECHAT_ASSISTANT_API_KEY",
				NextStep: "pagechat config show",
			}
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.requireOperator(ctx); err != nil {
			return err
		}

		chat, err := newAssistant(ctx, a)
		if err != nil {
			return err
		}

		var image *models.Image
		if assistantImage != "" {
			image, err = assistant.LoadImage(assistantImage)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			return askOnce(ctx, chat, strings.Join(args, " "), image, out)
		}
		if err := runChat(ctx, chat, cmd.InOrStdin(), out, image); err != nil {
			return err
		}
		if a.cfg.Assistant.PersistTranscripts {
			PrintNextSteps(HintContext{Action: "assistant", SessionID: chat.SessionID()})
		}
		return nil
	},
}

var assistantSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved assistant chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, err := openDatabase(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer database.Close()

		sessions, err := db.NewTranscriptRepository(database).Sessions(ctx, sessionsLimit)
		if err != nil {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), sessions)
		}
		if len(sessions) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No saved chats.")
			return err
		}
		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, []string{s.ID, fmt.Sprintf("%d", s.Turns), formatTime(s.LastAt)})
		}
		return writeTable(cmd.OutOrStdout(), []string{"SESSION", "TURNS", "LAST TURN"}, rows)
	},
}

func newAssistant(ctx context.Context, a *app) (*assistant.Assistant, error) {
	cfg := a.cfg.Assistant
	opts := []assistant.Option{assistant.WithPublisher(a.publisher)}

	if cfg.PersistTranscripts || assistantResume != "" {
		repo := db.NewTranscriptRepository(a.db)
		sessionID := assistantResume
		if sessionID != "" {
			history, err := repo.ListSession(ctx, sessionID)
			if err != nil {
				return nil, fmt.Errorf("failed to load chat %s: %w", sessionID, err)
			}
			if len(history) == 0 {
				return nil, fmt.Errorf("chat %s not found", sessionID)
			}
			opts = append(opts, assistant.WithHistory(history))
		}
		opts = append(opts, assistant.WithTranscript(repo, sessionID))
	}

	return assistant.New(ctx, assistant.Config{
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
	}, opts...)
}

func askOnce(ctx context.Context, chat *assistant.Assistant, prompt string, image *models.Image, out io.Writer) error {
	reply, err := chat.Ask(ctx, prompt, image)
	if err != nil {
		return err
	}
	if reply == nil {
		return errors.New("nothing to ask")
	}
	if IsJSONOutput() || IsJSONLOutput() {
		return WriteOutput(out, reply)
	}
	_, err = fmt.Fprintln(out, reply.Content)
	return err
}

// runChat reads prompts from in until EOF, /quit or ctx ends.
func runChat(ctx context.Context, chat *assistant.Assistant, in io.Reader, out io.Writer, image *models.Image) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for _, turn := range chat.History() {
		printTurn(out, turn)
	}

	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			chat.Reset()
			image = nil
			fmt.Fprintln(out, "(history cleared)")
			continue
		case strings.HasPrefix(line, "/image "):
			loaded, err := assistant.LoadImage(strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
			if err != nil {
				fmt.Fprintf(out, "(image not attached: %v)\n", err)
				continue
			}
			image = loaded
			fmt.Fprintf(out, "(image attached: %s, %d bytes)\n", image.MIMEType, len(image.Data))
			continue
		}

		reply, err := chat.Ask(ctx, line, image)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "(error: %s)\n", chat.LastError())
			continue
		}
		image = nil
		if reply != nil {
			printTurn(out, *reply)
		}
	}
}

func printTurn(out io.Writer, turn models.ChatTurn) {
	prefix := "you> "
	if turn.Role == models.ChatRoleAssistant {
		prefix = "assistant> "
	}
	suffix := ""
	if turn.Image != nil {
		suffix = " [image]"
	}
	fmt.Fprintf(out, "%s%s%s\n", prefix, turn.Content, suffix)
}
