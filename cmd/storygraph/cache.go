package main

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/pkg/cache"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the extraction cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.ContentCache) error {
			entries, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var cacheFindCmd = &cobra.Command{
	Use:   "find <schema>",
	Short: "List cache entries extracted with a schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.ContentCache) error {
			entries, err := c.FindBySchema(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(cmd, func(c *cache.ContentCache) error {
			s, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "entries: %d\nbytes:   %d\n", s.Entries, s.TotalBytes)
			if s.Oldest != nil {
				fmt.Fprintf(w, "oldest:  %s\nnewest:  %s\n", s.Oldest.Format(time.RFC3339), s.Newest.Format(time.RFC3339))
			}
			printCounts(w, "schemas", s.Schemas)
			printCounts(w, "models", s.Models)
			printCounts(w, "novels", s.Novels)
			return nil
		})
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete cache entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range args {
			if !cache.IsKey(key) {
				return fmt.Errorf("invalid cache key %q", key)
			}
		}
		return withCache(cmd, func(c *cache.ContentCache) error {
			for _, key := range args {
				if err := c.Delete(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", key)
			}
			return nil
		})
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete entries older than --older-than, or every entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		all, _ := cmd.Flags().GetBool("all")
		if age <= 0 && !all {
			return fmt.Errorf("set --older-than or --all")
		}
		return withCache(cmd, func(c *cache.ContentCache) error {
			n, err := c.Purge(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		})
	},
}

func init() {
	cachePurgeCmd.Flags().Duration("older-than", 0, "remove entries created before now minus this age, e.g. 720h")
	cachePurgeCmd.Flags().Bool("all", false, "remove every entry")

	cacheCmd.AddCommand(cacheListCmd, cacheFindCmd, cacheStatsCmd, cacheDeleteCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func withCache(cmd *cobra.Command, fn func(*cache.ContentCache) error) error {
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.Cache)
}

func printEntries(out io.Writer, entries []cache.EntryInfo) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNOVEL\tCHAPTER\tSCHEMA\tMODEL\tSIZE\tCREATED")
	for _, e := range entries {
		m := e.Metadata
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Key, m.NovelID, m.ChapterID, m.SchemaName, m.Model, e.Size, m.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %d\n", name, counts[name])
	}
}
