package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/db"
	"github.com/tOgg1/pagechat/internal/models"
)

var (
	eventsWatch        bool
	eventsTypes        []string
	eventsConversation string
	eventsSince        time.Duration
	eventsLimit        int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	flags := eventsCmd.Flags()
	flags.BoolVarP(&eventsWatch, "watch", "w", false, "stream new events as JSON Lines until interrupted")
	flags.StringSliceVar(&eventsTypes, "type", nil, "only these event types (repeatable)")
	flags.StringVar(&eventsConversation, "conversation", "", "only events for this conversation ID")
	flags.DurationVar(&eventsSince, "since", 0, "only events newer than this age (e.g. 1h)")
	flags.IntVar(&eventsLimit, "limit", 50, "max events to show")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the inbox event log",
	Long: `Show the inbox event log: refreshes, selections, sends and sync errors
recorded by earlier pagechat runs. With --watch, new events are streamed as
JSON Lines while another pagechat process works the inbox.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		database, err := openDatabase(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer database.Close()
		repo := db.NewEventRepository(database)

		types := make([]models.EventType, 0, len(eventsTypes))
		for _, t := range eventsTypes {
			types = append(types, models.EventType(t))
		}

		var since *time.Time
		if eventsSince > 0 {
			at := time.Now().Add(-eventsSince).UTC()
			since = &at
		}

		if eventsWatch {
			tail := newEventTail(repo, cmd.OutOrStdout(), tailOptions{
				Types:          types,
				ConversationID: eventsConversation,
				Since:          since,
			})
			return tail.Run(ctx)
		}

		var list []*models.Event
		if len(types) == 0 && eventsConversation == "" && since == nil {
			list, err = repo.Latest(ctx, eventsLimit)
		} else {
			query := db.EventQuery{Since: since, Limit: eventsLimit}
			if len(types) == 1 {
				query.Type = &types[0]
			}
			if eventsConversation != "" {
				query.ConversationID = &eventsConversation
			}
			var page *db.EventPage
			page, err = repo.Query(ctx, query)
			if page != nil {
				list = matchTypes(page.Events, types)
			}
		}
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No events.")
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, event := range list {
			conversation := event.ConversationID
			if conversation == "" {
				conversation = "-"
			}
			rows = append(rows, []string{
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(event.Type),
				conversation,
				truncateCell(string(event.Payload), previewCellWidth),
			})
		}
		return writeTable(cmd.OutOrStdout(), []string{"TIME", "TYPE", "CONVERSATION", "PAYLOAD"}, rows)
	},
}
