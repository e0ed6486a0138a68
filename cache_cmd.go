package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dgnsrekt/bookvoice/internal/cache"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the audio cache",
		Args:  cobra.NoArgs,
	}

	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show the size of the audio cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				printCacheStats(cmd.OutOrStdout(), m.Stats())
				return nil
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				if err := m.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared the audio cache")
				return nil
			})
		},
	}

	pruneAge time.Duration

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove cached audio older than --age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(func(m *cache.Manager) error {
				n := m.Prune(pruneAge)
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", humanize.Comma(int64(n))+" "+plural(n, "entry", "entries"))
				return nil
			})
		},
	}
)

func init() {
	cachePruneCmd.Flags().DurationVar(&pruneAge, "age", 7*24*time.Hour, "remove entries older than this")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
}

func withCache(fn func(*cache.Manager) error) error {
	cfg, err := loadConfig(mustEnvConfig())
	if err != nil {
		return err
	}
	m, err := openCache(cfg)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil {
		_ = m.Close()
		return err
	}
	return m.Close()
}

func printCacheStats(w io.Writer, s cache.ManagerStats) {
	level := func(name string, ls *cache.Stats) {
		if ls == nil {
			return
		}
		fmt.Fprintf(w, "%s %s, %s of %s\n",
			keyword(fmt.Sprintf("%-6s", name)),
			humanize.Comma(int64(ls.Items))+" "+plural(ls.Items, "entry", "entries"),
			humanize.Bytes(uint64(ls.Size)),     //nolint:gosec
			humanize.Bytes(uint64(ls.Capacity)), //nolint:gosec
		)
	}
	level("memory", s.Memory)
	level("disk", s.Disk)
	if s.Hits+s.Misses > 0 {
		fmt.Fprintf(w, "%s %.0f%%\n", keyword("hits  "), s.HitRate()*100)
	}
	if !s.LastCleanup.IsZero() {
		fmt.Fprintf(w, "%s %s\n", keyword("pruned"), faint(humanize.Time(s.LastCleanup)))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
