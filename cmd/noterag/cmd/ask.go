package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/output"
	"github.com/noterag/noterag/internal/search"
)

func newAskCmd() *cobra.Command {
	var (
		vaultFlag string
		modeFlag  string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question over the notes",
		Long: `Retrieve the most relevant notes and synthesize a grounded answer
with source citations.

Requires the answer gateway to be configured (answer.gateway_url or
CLAWDBOT_URL / CLAWDBOT_TOKEN).

Examples:
  noterag ask "what did we decide about the Q3 roadmap?"
  noterag ask "when is the boiler service due?" --vault personal`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runAsk(cmd.Context(), cmd, question, vaultFlag, modeFlag, jsonOut)
		},
	}

	cmd.Flags().StringVar(&vaultFlag, "vault", "all", "Vault to search: work, personal, or all")
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "query", "Retrieval mode feeding the answer")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the answer as JSON")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question, vaultFlag, modeFlag string, jsonOut bool) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	vault, err := index.ParseVault(vaultFlag)
	if err != nil {
		return err
	}
	mode, err := search.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	opts := search.NewOptions()
	opts.Vault = vault
	opts.Mode = mode

	answer, err := e.searcher.Answer(ctx, question, opts)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("", answer.Answer)
	if len(answer.Sources) > 0 {
		out.Newline()
		out.Status("", "Sources:")
		for i, src := range answer.Sources {
			title := src.Title
			if title == "" {
				title = src.File
			}
			out.Statusf("", "%d. %s (%s)", i+1, title, src.File)
		}
	}
	return nil
}
