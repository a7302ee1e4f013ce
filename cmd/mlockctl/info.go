package main

import (
	"fmt"

	"github.com/joshuapare/securemem/pool"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Report pool geometry and occupancy",
		Long: `The info command constructs the process-wide pool and displays its
geometry: page size, pin quota, fixed-tier size classes and the large
tier's bucket state.

Example:
  mlockctl info
  mlockctl info --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo()
		},
	}
	return cmd
}

func runInfo() error {
	printVerbose("Constructing process-wide pool\n")

	p, err := pool.Get()
	if err != nil {
		return fmt.Errorf("failed to construct pool: %w", err)
	}
	stats := p.Stats()

	if jsonOut {
		return printJSON(stats)
	}

	printInfo("\nPool geometry:\n")
	printInfo("  Page size: %d bytes\n", stats.PageSize)
	printInfo("  Block size: %d bytes\n", stats.BlockSize)
	printInfo("  Pin quota: %d bytes (advisory; the kernel decides per mapping)\n", stats.PinQuota)

	printInfo("\nFixed tier: %d size classes\n", len(stats.FixedClasses))
	for i, c := range stats.FixedClasses {
		printInfo("  class %d: %d-byte blocks, %d/%d free\n",
			i, c.BlockSize, c.FreeBlocks, c.BlockCount)
	}

	printInfo("\nLarge tier:\n")
	printInfo("  Buckets: %d (%d full, cached empty: %v)\n",
		stats.Large.Buckets, stats.Large.FullBuckets, stats.Large.CachedEmpty)
	printInfo("  Blocks: %d/%d free\n", stats.Large.FreeBlocks, stats.Large.TotalBlocks)

	return nil
}
