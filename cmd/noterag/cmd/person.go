package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/output"
)

func newPersonCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "person <name>",
		Short: "Summarize interactions with a person",
		Long: `Aggregate the work notes that mention a person: meeting count,
last meeting date, recent topics, open action items, and the most
recent meetings.

Example:
  noterag person sarah`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return runPerson(cmd.Context(), cmd, name, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runPerson(ctx context.Context, cmd *cobra.Command, name string, jsonOut bool) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	pc, err := e.searcher.PersonContext(ctx, name)
	if err != nil {
		return fmt.Errorf("person context failed: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(pc)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("👤", "%s", pc.Person)
	if pc.MeetingCount == 0 {
		out.Status("", "No notes mention this person.")
		return nil
	}

	out.Statusf("", "Meetings: %d", pc.MeetingCount)
	if pc.LastMeeting != "" {
		out.Statusf("", "Last meeting: %s", pc.LastMeeting)
	}

	if len(pc.RecentTopics) > 0 {
		out.Newline()
		out.Status("", "Recent topics:")
		for _, topic := range pc.RecentTopics {
			out.Status("", "  - "+topic)
		}
	}

	if len(pc.OpenActions) > 0 {
		out.Newline()
		out.Status("", "Open actions:")
		for _, action := range pc.OpenActions {
			out.Status("", "  - "+action)
		}
	}

	if len(pc.RecentMeetings) > 0 {
		out.Newline()
		out.Status("", "Recent meetings:")
		for _, m := range pc.RecentMeetings {
			line := m.Title
			if m.Date != "" {
				line = m.Date + "  " + line
			}
			out.Status("", "  "+line)
			if m.Summary != "" {
				out.Status("", "    "+m.Summary)
			}
		}
	}
	return nil
}

func newActionsCmd() *cobra.Command {
	var (
		person  string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List open action items from the notes",
		Long: `Extract unchecked checkbox items and "Action:"/"TODO:" lines from
recent notes, newest first.

Examples:
  noterag actions
  noterag actions --person sarah --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runActions(cmd.Context(), cmd, person, limit, jsonOut)
		},
	}

	cmd.Flags().StringVar(&person, "person", "", "Only actions from notes that mention this person")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum items (0 uses the default)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

func runActions(ctx context.Context, cmd *cobra.Command, person string, limit int, jsonOut bool) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	items, err := e.searcher.ActionItems(ctx, person, limit)
	if err != nil {
		return fmt.Errorf("action items failed: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	out := output.New(cmd.OutOrStdout())
	if len(items) == 0 {
		out.Status("", "No open action items found.")
		return nil
	}

	out.Statusf("", "%d open action items:", len(items))
	out.Newline()
	for _, item := range items {
		line := item.Item
		if item.Date != "" {
			line += "  (" + item.Date + ")"
		}
		out.Status("", "  - "+line)
	}
	return nil
}
