package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/csep/internal/logging"
	"github.com/dshills/csep/internal/mcp"
)

func newMCPCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server for AI assistant integration.

The server communicates over stdio using JSON-RPC. Logs go to stderr.

Client configuration:
  {
    "mcpServers": {
      "csep": {
        "command": "/path/to/csep",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			server, err := mcp.NewServer(mcp.Deps{
				Searcher: a.searcher,
				Store:    a.store,
				Embedder: a.embedder,
				Floor:    a.cfg.Floor,
				Limit:    a.cfg.Limit,
				Workers:  a.cfg.Workers,
			}, mcp.WithLogger(logging.Component(a.logger, "mcp")))
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
