// Package cli provides the inbox launch command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/inboxtui"
	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

var inboxConversation string

func init() {
	rootCmd.AddCommand(inboxCmd)
	inboxCmd.Flags().StringVarP(&inboxConversation, "conversation", "c", "", "open this conversation (ID, ID prefix or name)")
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Open the live inbox",
	Long: `Open the live inbox. On a terminal this starts the inbox TUI; otherwise
(or with --non-interactive / --jsonl) inbox activity is printed as lines
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runInbox(ctx, cmd.OutOrStdout())
	},
}

func runInbox(ctx context.Context, out io.Writer) error {
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
	if inboxConversation != "" {
		conv, err := resolveConversation(ctx, session, store, inboxConversation)
		if err != nil {
			return err
		}
		session.Select(ctx, conv.ID)
		rememberConversation(store, conv)
	}

	poller := inbox.NewPoller(session)
	if IsNonInteractive() || IsJSONOutput() || IsJSONLOutput() {
		return runInboxLines(ctx, a.publisher, session, poller, out)
	}
	return runTUI(ctx, a, session, poller)
}

func runTUI(ctx context.Context, a *app, session *inbox.Session, poller *inbox.Poller) error {
	events, unsubscribe, err := inboxtui.Subscribe(a.publisher)
	if err != nil {
		return err
	}
	defer unsubscribe()

	// Log lines would tear the alternate screen.
	if a.cfg.Logging.File == "" {
		logging.Disable()
	}

	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = poller.Stop() }()

	return inboxtui.Run(ctx, session, poller, events, inboxtui.Config{
		ShowTimestamps: a.cfg.TUI.ShowTimestamps,
		PreviewWidth:   a.cfg.TUI.PreviewWidth,
	})
}

const lineSubscriptionID = "cli.inbox"

// runInboxLines drives the poller and prints activity until ctx ends.
func runInboxLines(ctx context.Context, pub *events.InMemoryPublisher, session *inbox.Session, poller *inbox.Poller, out io.Writer) error {
	ch := make(chan *models.Event, 64)
	if err := pub.Subscribe(lineSubscriptionID, events.Filter{}, func(event *models.Event) {
		select {
		case ch <- event:
		default:
		}
	}); err != nil {
		return err
	}
	defer func() { _ = pub.Unsubscribe(lineSubscriptionID) }()

	reporter := newLineReporter(session, out, IsJSONOutput() || IsJSONLOutput())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := poller.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		if err := poller.Stop(); err != nil && !errors.Is(err, inbox.ErrPollerNotRunning) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case event := <-ch:
				if err := reporter.Report(event); err != nil {
					return fmt.Errorf("failed to write inbox activity: %w", err)
				}
			}
		}
	})
	return g.Wait()
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
