package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/csep/internal/indexer"
)

type cacheOptions struct {
	clear bool
	build bool
	stats bool
}

func newCacheCommand(opts *options) *cobra.Command {
	cacheOpts := &cacheOptions{}

	cmd := &cobra.Command{
		Use:   "cache [path]",
		Short: "Manage the embeddings cache",
		Long: `Manage the embeddings cache.

With no flags the cache is built for path (default: the current directory),
so later searches only embed files that changed. --clear removes every
cached embedding. --stats reports where the cache lives and how big it is.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runCache(cmd, opts, cacheOpts, root)
		},
	}

	cmd.Flags().BoolVarP(&cacheOpts.clear, "clear", "c", false, "remove the cache directory")
	cmd.Flags().BoolVarP(&cacheOpts.build, "build", "b", false, "embed every file under path (default action)")
	cmd.Flags().BoolVarP(&cacheOpts.stats, "stats", "s", false, "print cache location, entry count and size")
	return cmd
}

func runCache(cmd *cobra.Command, opts *options, cacheOpts *cacheOptions, root string) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()
	build := cacheOpts.build || (!cacheOpts.clear && !cacheOpts.stats)

	if cacheOpts.clear {
		removed, err := a.store.Clear()
		if err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(out, "Removed %d cache entries from %s\n", removed, a.store.Root())
	}

	if build {
		bar := newProgress(cmd.ErrOrStderr(), "indexing", !opts.verbose && isTerminal(cmd.ErrOrStderr()))
		stats, err := a.searcher.Build(cmd.Context(), root, &indexer.Config{
			Workers:    a.cfg.Workers,
			OnFileDone: bar.onFileDone(),
		}, bar.onFilesListed())
		bar.Finish()
		if err != nil {
			return fmt.Errorf("build cache: %w", err)
		}
		fmt.Fprintln(out, indexSummary(stats))
		for _, msg := range stats.ErrorMessages {
			a.logger.Debug("file not indexed", "detail", msg)
		}
	}

	if cacheOpts.stats {
		stats, err := a.store.Stats()
		if err != nil {
			return fmt.Errorf("read cache: %w", err)
		}
		fmt.Fprintf(out, "root: %s\n", stats.Root)
		fmt.Fprintf(out, "entries: %d\n", stats.Entries)
		fmt.Fprintf(out, "size: %d bytes\n", stats.Bytes)
	}
	return nil
}
