// Package cli implements the csep command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/internal/searcher"
)

// Version is set by the linker.
var Version = "dev"

// NewRootCommand builds the csep command tree. Each call returns an
// independent tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "csep [query] [comparison]",
		Short: "Semantic search over local files",
		Long: `csep embeds every text file under the current directory in chunks and
prints the chunks most similar in meaning to the search phrase.

Embeddings are cached per file content, so only new or changed files are
embedded on later runs. Piped stdin replaces the query argument.

With a second argument, csep prints the similarity of the two texts instead.`,
		Example: `  csep "retry with exponential backoff"
  git log -1 --format=%B | csep -f 0.4
  csep -v "database migrations" | vim -q /dev/stdin
  csep "fast animal" "quick fox"`,
		Args:          cobra.MaximumNArgs(2),
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, args, opts)
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&opts.configPath, "config", "", "config file path (default $CSEP_CONFIG or <config dir>/csep/config.yaml)")
	persistent.StringVarP(&opts.provider, "provider", "p", "", "embedding provider: "+strings.Join(embedder.Providers(), " | "))
	persistent.StringVarP(&opts.model, "model", "M", "", "embedding model")
	persistent.IntVar(&opts.workers, "workers", 0, "files embedded concurrently (default number of CPUs)")
	persistent.BoolVar(&opts.verbose, "verbose", false, "debug logging on stderr")

	flags := rootCmd.Flags()
	flags.Float32VarP(&opts.floor, "floor", "f", searcher.DefaultFloor, "similarity floor; results must score above it")
	flags.BoolVarP(&opts.noQuery, "no-query", "n", false, "do not print the search phrase")
	flags.BoolVarP(&opts.listModels, "list-models", "l", false, "list models for the selected provider")
	flags.BoolVarP(&opts.vimgrep, "vimgrep", "v", false, "print path:line:column:score lines")
	flags.IntVar(&opts.limit, "limit", 0, "maximum number of results (0 = all)")

	rootCmd.AddCommand(
		newCacheCommand(opts),
		newMCPCommand(opts),
		newConfigCommand(opts),
	)
	return rootCmd
}

// Execute runs the command tree and prints any error to stderr.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "csep: %v\n", err)
		return 1
	}
	return 0
}

func runRoot(cmd *cobra.Command, args []string, opts *options) error {
	var query string
	if len(args) > 0 {
		query = args[0]
	}

	if opts.listModels {
		return runListModels(cmd, opts)
	}

	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := newPrinter(cmd.OutOrStdout(), opts.vimgrep, opts.noQuery)

	if len(args) == 2 {
		similarity, err := a.searcher.Compare(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("comparison failed: %w", err)
		}
		out.comparison(args[0], args[1], similarity)
		return nil
	}

	piped, err := readStdin(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if piped != "" {
		query = piped
	}
	if strings.TrimSpace(query) == "" {
		return errNoQuery
	}

	bar := newProgress(cmd.ErrOrStderr(), "embedding", !opts.verbose && isTerminal(cmd.ErrOrStderr()))
	resp, err := a.searcher.Search(cmd.Context(), searcher.SearchRequest{
		Root:          ".",
		Query:         query,
		Floor:         a.cfg.Floor,
		Limit:         a.cfg.Limit,
		Workers:       a.cfg.Workers,
		OnFilesListed: bar.onFilesListed(),
		OnFileDone:    bar.onFileDone(),
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out.results(query, resp.Results)
	return nil
}

func runListModels(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	models, err := embedder.Models(cfg.Provider)
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout(), false, false).models(cfg.Provider, models, cfg.Model)
	return nil
}

// readStdin returns piped input with trailing newlines removed. Terminals
// and character devices yield "".
func readStdin(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		if isTerminal(f) {
			return "", nil
		}
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
