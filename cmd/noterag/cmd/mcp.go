package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Serve the note tools over the Model Context Protocol.

The transport is stdio: AI assistants such as Claude Code spawn this
command and speak JSON-RPC over the pipe. stdout is reserved for the
protocol, so all logging goes to the log file only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries JSON-RPC frames; never mirror logs there or
			// to the terminal.
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

			srv, err := mcp.NewServer(mcp.Deps{
				Config:   e.cfg,
				Searcher: e.searcher,
				Jobs:     e.jobs,
				Vectors:  e.vectors,
				FTS:      e.fts,
				Embedder: e.embedder,
			})
			if err != nil {
				return err
			}

			return srv.Serve(ctx)
		},
	}

	return cmd
}
