// Package cli provides export commands for pagechat data.
package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/db"
	"github.com/tOgg1/pagechat/internal/models"
)

var exportEventLimit int

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportStatusCmd)
	exportCmd.AddCommand(exportTranscriptCmd)
	exportStatusCmd.Flags().IntVar(&exportEventLimit, "events", 100, "number of recent events to include")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export pagechat data",
	Long:  "Export locally stored pagechat state for automation or reporting.",
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Export local state",
	Long:  "Export view marks, recent events and assistant sessions as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := GetConfig()

		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		status, err := buildExportStatus(ctx, database, cfg.Graph.PageID, exportEventLimit)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), status)
		}

		writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Page:\t%s\n", status.PageID)
		fmt.Fprintf(writer, "Viewed conversations:\t%d\n", len(status.ViewMarks))
		fmt.Fprintf(writer, "Recent events:\t%d\n", len(status.Events))
		fmt.Fprintf(writer, "Assistant sessions:\t%d\n", len(status.Sessions))
		if err := writer.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Use --json or --jsonl for full export output.")
		return nil
	},
}

var exportTranscriptCmd = &cobra.Command{
	Use:   "transcript <session-id>",
	Short: "Export one assistant chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, err := openDatabase(ctx, GetConfig())
		if err != nil {
			return err
		}
		defer database.Close()

		turns, err := db.NewTranscriptRepository(database).ListSession(ctx, args[0])
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			return fmt.Errorf("chat %s not found", args[0])
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), turns)
		}
		for _, turn := range turns {
			printTurn(cmd.OutOrStdout(), turn)
		}
		return nil
	},
}

// ExportStatus is the payload returned by `pagechat export status`.
type ExportStatus struct {
	PageID    string               `json:"page_id"`
	ViewMarks map[string]time.Time `json:"view_marks"`
	Events    []*models.Event      `json:"events"`
	Sessions  []db.SessionSummary  `json:"assistant_sessions"`
}

func buildExportStatus(ctx context.Context, database *db.DB, pageID string, eventLimit int) (*ExportStatus, error) {
	status := &ExportStatus{PageID: pageID, ViewMarks: map[string]time.Time{}}

	if pageID != "" {
		marks, err := db.NewViewMarkRepository(database, pageID).All(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list view marks: %w", err)
		}
		status.ViewMarks = marks
	}

	events, err := db.NewEventRepository(database).Latest(ctx, eventLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	status.Events = events

	sessions, err := db.NewTranscriptRepository(database).Sessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistant sessions: %w", err)
	}
	status.Sessions = sessions

	return status, nil
}
